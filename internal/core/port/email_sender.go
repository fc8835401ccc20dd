package port

import (
	"context"

	"github.com/arklim/account-service/internal/core/domain"
)

// EmailSender delivers rendered transactional email.
type EmailSender interface {
	Send(ctx context.Context, message domain.EmailMessage) error
}

// Mailer renders a named email template and delivers the result.
type Mailer interface {
	SendTemplate(ctx context.Context, template string, to []string, data map[string]any) error
}
