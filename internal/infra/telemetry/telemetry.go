package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "account"

// Outcomes recorded by the account counters.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeLocked   = "locked_out"
	OutcomeNotAllow = "not_allowed"
)

// Metrics holds the account-level prometheus counters.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	emails        *prometheus.CounterVec
}

// NewMetrics registers the account counters with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Password sign-in attempts by outcome",
		}, []string{"outcome"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts created through registration or administration",
		}),
		emails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Transactional emails by template and outcome",
		}, []string{"template", "outcome"}),
	}
}

// ObserveLogin counts a sign-in attempt.
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveRegistration counts a created account.
func (m *Metrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

// ObserveEmail counts a delivery attempt for template.
func (m *Metrics) ObserveEmail(template, outcome string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(template, outcome).Inc()
}
