package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
	maxZxcvbnScore             = 4
)

// Violation codes reported in PasswordValidationError.Code.
const (
	PasswordTooShort         = "too_short"
	PasswordTooFewClasses    = "too_few_classes"
	PasswordContainsUserName = "contains_username"
	PasswordTooWeak          = "too_weak"
)

var errPolicyNotConfigured = errors.New("password policy not configured")

// PasswordValidationError is a single policy violation. Message is safe to show to the user.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordContext carries user attributes the strength check should penalise.
type PasswordContext struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

func (c PasswordContext) inputs() []string {
	inputs := make([]string, 0, 5)
	for _, value := range []string{c.Username, c.Email, c.FirstName, c.LastName} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}
	if at := strings.Index(c.Email, "@"); at > 0 {
		inputs = append(inputs, c.Email[:at])
	}
	return inputs
}

// PasswordPolicyConfig tunes the rules applied by PasswordPolicy.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyConfig returns the policy used when nothing is configured.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           defaultMinPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
		MinStrengthScore:    defaultMinZxcvbnScore,
	}
}

type passwordRule func(password string, ctx PasswordContext) *PasswordValidationError

// PasswordPolicy checks new passwords for registration, admin create and both reset flows.
type PasswordPolicy struct {
	rules []passwordRule
}

// NewPasswordPolicy builds a policy from cfg. Zero values disable the corresponding rule.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{rules: []passwordRule{
		minLength(cfg.MinLength),
		characterClasses(cfg.MinCharacterClasses),
		notContainingUserName(),
		strength(cfg.MinStrengthScore),
	}}
}

// Validate returns the first violated rule as *PasswordValidationError.
func (p *PasswordPolicy) Validate(password string, ctx PasswordContext) error {
	if p == nil || len(p.rules) == 0 {
		return errPolicyNotConfigured
	}
	for _, rule := range p.rules {
		if violation := rule(password, ctx); violation != nil {
			return violation
		}
	}
	return nil
}

func minLength(n int) passwordRule {
	return func(password string, _ PasswordContext) *PasswordValidationError {
		if n <= 0 || len([]rune(password)) >= n {
			return nil
		}
		return &PasswordValidationError{
			Code:    PasswordTooShort,
			Message: fmt.Sprintf("Passwords must be at least %d characters.", n),
		}
	}
}

// characterClasses counts upper, lower, digit and symbol classes.
func characterClasses(n int) passwordRule {
	return func(password string, _ PasswordContext) *PasswordValidationError {
		if n <= 0 {
			return nil
		}
		var upper, lower, digit, symbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case unicode.IsSymbol(r), unicode.IsPunct(r):
				symbol = true
			}
		}
		classes := 0
		for _, present := range []bool{upper, lower, digit, symbol} {
			if present {
				classes++
			}
		}
		if classes >= n {
			return nil
		}
		return &PasswordValidationError{
			Code:    PasswordTooFewClasses,
			Message: fmt.Sprintf("Passwords must use at least %d of: uppercase letters, lowercase letters, digits, symbols.", n),
		}
	}
}

func notContainingUserName() passwordRule {
	return func(password string, ctx PasswordContext) *PasswordValidationError {
		username := strings.ToLower(strings.TrimSpace(ctx.Username))
		if len(username) < 3 || !strings.Contains(strings.ToLower(password), username) {
			return nil
		}
		return &PasswordValidationError{
			Code:    PasswordContainsUserName,
			Message: "Passwords must not contain the user name.",
		}
	}
}

func strength(minScore int) passwordRule {
	minScore = min(minScore, maxZxcvbnScore)
	return func(password string, ctx PasswordContext) *PasswordValidationError {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, ctx.inputs()).Score >= minScore {
			return nil
		}
		return &PasswordValidationError{
			Code:    PasswordTooWeak,
			Message: "Password is too easy to guess. Try a longer passphrase.",
		}
	}
}
