package handlers

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxNameLength     = 256
	maxPasswordLength = 256
	maxPageLength     = 2048
)

// LoginRequest is the payload of POST /api/Account/Login.
type LoginRequest struct {
	UserName   string `json:"userName"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Validate runs the validation rules.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
	)
}

// RegisterRequest is the payload of POST /api/Account/Register.
type RegisterRequest struct {
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Validate runs the validation rules. PasswordConfirm is checked only when sent.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxNameLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.PasswordConfirm, validation.By(stringEquals(r.Password))),
	)
}

// ConfirmEmailRequest is the payload of POST /api/Account/ConfirmEmail.
// Missing fields are reported as not found, so there are no validation rules.
type ConfirmEmailRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// ForgotPasswordRequest is the payload of POST /api/Account/ForgotPassword.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate runs the validation rules.
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordRequest is the payload of POST /api/Account/ResetPassword.
type ResetPasswordRequest struct {
	UserID          string `json:"userId"`
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Validate runs the validation rules.
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.PasswordConfirm, validation.Required, validation.By(stringEquals(r.Password))),
	)
}

// UpdateUserRequest is the payload of POST /api/Account/UpdateUser.
type UpdateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Validate runs the validation rules.
func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.FirstName, validation.Length(0, maxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, maxNameLength)),
	)
}

// CreateUserRequest is the payload of POST /api/Account/Create.
type CreateUserRequest struct {
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Validate runs the validation rules.
func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.FirstName, validation.Length(0, maxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, maxNameLength)),
	)
}

// AdminUpdateRequest is the payload of PUT /api/Account. Roles is the complete target set.
type AdminUpdateRequest struct {
	ID        string   `json:"id"`
	UserName  string   `json:"userName"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

// Validate runs the validation rules.
func (r AdminUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, is.UUID),
		validation.Field(&r.UserName, validation.Length(0, maxNameLength)),
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.FirstName, validation.Length(0, maxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, maxNameLength)),
		validation.Field(&r.Roles, validation.By(roleNames)),
	)
}

// ProfileRequest is the payload of POST /api/UserProfile/Upsert.
type ProfileRequest struct {
	LastPageVisited string `json:"lastPageVisited"`
	IsNavOpen       bool   `json:"isNavOpen"`
	IsNavMinified   bool   `json:"isNavMinified"`
	Count           int    `json:"count"`
}

// Validate runs the validation rules.
func (r ProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LastPageVisited, validation.Length(0, maxPageLength)),
		validation.Field(&r.Count, validation.Min(0)),
	)
}

func roleNames(value interface{}) error {
	roles, _ := value.([]string)
	for _, role := range roles {
		if strings.TrimSpace(role) == "" || len(role) > maxNameLength {
			return errors.New("role names must be between 1 and 256 characters")
		}
	}
	return nil
}

func stringEquals(expected string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != "" && s != expected {
			return errors.New("passwords do not match")
		}
		return nil
	}
}
