package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/logger"
)

type emailObserver interface {
	ObserveEmail(template, outcome string)
}

// Mailer renders templates and hands the result to an EmailSender.
type Mailer struct {
	renderer *Renderer
	sender   port.EmailSender
	observer emailObserver
	logger   *zap.Logger
}

var _ port.Mailer = (*Mailer)(nil)

// NewMailer wires a Mailer. observer may be nil.
func NewMailer(renderer *Renderer, sender port.EmailSender, observer emailObserver, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{renderer: renderer, sender: sender, observer: observer, logger: log}
}

// SendTemplate renders template with data and delivers it to to.
func (m *Mailer) SendTemplate(ctx context.Context, template string, to []string, data map[string]any) error {
	subject, body, err := m.renderer.Render(template, data)
	if err != nil {
		m.observe(template, "render_error")
		return err
	}

	msg := domain.EmailMessage{
		To:       to,
		Subject:  subject,
		Body:     body,
		Template: template,
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		m.observe(template, "failure")
		return fmt.Errorf("deliver %s email: %w", template, err)
	}

	m.observe(template, "success")
	m.logger.Debug("email sent",
		zap.String("template", template),
		zap.Strings("to", maskAll(to)),
	)
	return nil
}

func (m *Mailer) observe(template, outcome string) {
	if m.observer != nil {
		m.observer.ObserveEmail(template, outcome)
	}
}

func maskAll(addresses []string) []string {
	masked := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		masked = append(masked, logger.MaskEmail(addr))
	}
	return masked
}
