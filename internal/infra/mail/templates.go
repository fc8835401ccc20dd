package mail

import (
	"embed"
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/arklim/account-service/internal/core/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

var subjects = map[string]string{
	domain.EmailTemplateConfirmEmail:              "Confirm your email",
	domain.EmailTemplatePasswordReset:             "Reset your password",
	domain.EmailTemplatePasswordResetConfirmation: "Your password has been changed",
	domain.EmailTemplateWelcome:                   "Your new account",
}

// Renderer holds the compiled email templates.
type Renderer struct {
	templates map[string]*pongo2.Template
}

// NewRenderer compiles every known template from the embedded files.
func NewRenderer() (*Renderer, error) {
	templates := make(map[string]*pongo2.Template, len(subjects))
	for name := range subjects {
		raw, err := templatesFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, err := pongo2.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", name, err)
		}
		templates[name] = tpl
	}
	return &Renderer{templates: templates}, nil
}

// Render produces the subject and HTML body of template for data.
func (r *Renderer) Render(template string, data map[string]any) (string, string, error) {
	tpl, ok := r.templates[template]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", template)
	}
	body, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", "", fmt.Errorf("render template %s: %w", template, err)
	}
	return subjects[template], body, nil
}
