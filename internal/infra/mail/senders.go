package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/config"
)

// Sender modes accepted in configuration.
const (
	ModeSMTP  = "smtp"
	ModeKafka = "kafka"
	ModeLog   = "log"
)

// NewSender selects the EmailSender for cfg.Mode.
func NewSender(cfg config.MailSettings, events port.EventPublisher, log *zap.Logger) (port.EmailSender, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeSMTP:
		return NewSMTPSender(cfg), nil
	case ModeKafka:
		if events == nil {
			return nil, fmt.Errorf("kafka mail mode requires an event publisher")
		}
		return NewOutboxSender(events), nil
	case ModeLog, "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unsupported mail mode %q", cfg.Mode)
	}
}

const defaultSMTPTimeout = 15 * time.Second

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SMTPSender delivers mail through an SMTP relay. Every send is bounded by the
// configured timeout and by the caller's context.
type SMTPSender struct {
	addr    string
	host    string
	from    string
	auth    smtp.Auth
	timeout time.Duration
	dial    dialFunc
	now     func() time.Time
}

// NewSMTPSender builds a sender for cfg. PLAIN auth is used when a user is configured.
func NewSMTPSender(cfg config.MailSettings) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &SMTPSender{
		addr:    net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host:    cfg.SMTPHost,
		from:    cfg.From,
		auth:    auth,
		timeout: timeout,
		dial:    dialer.DialContext,
		now:     time.Now,
	}
}

// Send opens a connection to the relay and delivers message. Cancelling ctx
// aborts an in-flight conversation.
func (s *SMTPSender) Send(ctx context.Context, message domain.EmailMessage) error {
	if len(message.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := s.deliver(conn, message); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", ctxErr)
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("smtp send: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) deliver(conn net.Conn, message domain.EmailMessage) error {
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("relay does not support AUTH")
		}
		if err := c.Auth(s.auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	for _, rcpt := range message.To {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.buildMessage(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPSender) buildMessage(message domain.EmailMessage) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(message.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", message.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@account-service>\r\n", uuid.NewString())
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(message.Body)
	return buf.Bytes()
}

// OutboxSender publishes rendered mail to Kafka for an external mail worker.
type OutboxSender struct {
	events port.EventPublisher
	now    func() time.Time
}

// NewOutboxSender constructs a Kafka outbox sender.
func NewOutboxSender(events port.EventPublisher) *OutboxSender {
	return &OutboxSender{events: events, now: time.Now}
}

// Send publishes message as an email.requested event.
func (s *OutboxSender) Send(ctx context.Context, message domain.EmailMessage) error {
	return s.events.PublishEmailRequested(ctx, domain.EmailRequestedEvent{
		EventID:     uuid.NewString(),
		To:          message.To,
		Subject:     message.Subject,
		Body:        message.Body,
		Template:    message.Template,
		RequestedAt: s.now().UTC(),
	})
}

// LogSender records that mail would have been sent without delivering it. The body is
// never logged since it carries live tokens and initial passwords. Development only.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a logging sender.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log}
}

// Send logs the envelope of message.
func (s *LogSender) Send(_ context.Context, message domain.EmailMessage) error {
	s.logger.Info("email (not delivered)",
		zap.Strings("to", maskAll(message.To)),
		zap.String("subject", message.Subject),
		zap.String("template", message.Template),
		zap.Int("body_bytes", len(message.Body)),
	)
	return nil
}
