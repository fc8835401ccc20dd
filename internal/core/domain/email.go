package domain

// EmailMessage is a rendered transactional email.
type EmailMessage struct {
	To       []string
	Subject  string
	Body     string
	Template string
}

const (
	EmailTemplateConfirmEmail              = "confirm_email"
	EmailTemplatePasswordReset             = "password_reset"
	EmailTemplatePasswordResetConfirmation = "password_reset_confirmation"
	EmailTemplateWelcome                   = "welcome"
)
