package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose scopes a purpose token to a single flow.
type TokenPurpose string

const (
	PurposeEmailConfirmation TokenPurpose = "email_confirmation"
	PurposePasswordReset     TokenPurpose = "password_reset"

	defaultEmailConfirmationTTL = 24 * time.Hour
	defaultPasswordResetTTL     = 3 * time.Hour
	minPurposeTokenSecretLength = 32
)

var (
	// ErrInvalidPurposeToken covers every rejection reason: bad signature, expiry, purpose, subject or stale stamp.
	ErrInvalidPurposeToken = errors.New("purpose token: invalid")
	// ErrPurposeTokenSecret indicates the signing secret is missing or too short.
	ErrPurposeTokenSecret = errors.New("purpose token: signing secret must be at least 32 bytes")
)

// PurposeTokenConfig configures PurposeTokens.
type PurposeTokenConfig struct {
	Secret               string
	Issuer               string
	EmailConfirmationTTL time.Duration
	PasswordResetTTL     time.Duration
}

type purposeClaims struct {
	Purpose string `json:"purpose"`
	Stamp   string `json:"stamp"`
	jwt.RegisteredClaims
}

// PurposeTokens issues and validates HS256 tokens for email confirmation and password reset.
// Tokens are bound to the user's security stamp, so rotating the stamp consumes them.
type PurposeTokens struct {
	secret    []byte
	issuer    string
	lifetimes map[TokenPurpose]time.Duration
	now       func() time.Time
}

// NewPurposeTokens validates the configuration and constructs the token service.
func NewPurposeTokens(cfg PurposeTokenConfig) (*PurposeTokens, error) {
	if len(cfg.Secret) < minPurposeTokenSecretLength {
		return nil, ErrPurposeTokenSecret
	}
	confirmTTL := cfg.EmailConfirmationTTL
	if confirmTTL <= 0 {
		confirmTTL = defaultEmailConfirmationTTL
	}
	resetTTL := cfg.PasswordResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultPasswordResetTTL
	}
	return &PurposeTokens{
		secret: []byte(cfg.Secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		lifetimes: map[TokenPurpose]time.Duration{
			PurposeEmailConfirmation: confirmTTL,
			PurposePasswordReset:     resetTTL,
		},
		now: time.Now,
	}, nil
}

// Generate signs a token for the user and purpose bound to the supplied security stamp.
func (p *PurposeTokens) Generate(purpose TokenPurpose, userID, securityStamp string) (string, error) {
	ttl, ok := p.lifetimes[purpose]
	if !ok {
		return "", fmt.Errorf("purpose token: unknown purpose %q", purpose)
	}

	now := p.now().UTC()
	claims := purposeClaims{
		Purpose: string(purpose),
		Stamp:   HashToken(securityStamp),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign purpose token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry, purpose, subject and the current security stamp.
func (p *PurposeTokens) Validate(token string, purpose TokenPurpose, userID, securityStamp string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidPurposeToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}

	var claims purposeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return ErrInvalidPurposeToken
	}

	if claims.Purpose != string(purpose) || claims.Subject != userID {
		return ErrInvalidPurposeToken
	}
	if claims.Stamp != HashToken(securityStamp) {
		return ErrInvalidPurposeToken
	}
	return nil
}
