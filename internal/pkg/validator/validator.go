// Package validator decodes and validates JSON request bodies.
package validator

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	apperrors "tasker/internal/pkg/errors"
)

// Normalizer is implemented by request types that trim or lower-case fields
// before validation.
type Normalizer interface {
	Normalize()
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})

	return &Validator{validate: v}
}

// IsStrongPassword requires at least one lower-case letter, one upper-case
// letter and one digit.
func IsStrongPassword(password string) bool {
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Struct normalizes and validates dst.
func (v *Validator) Struct(dst any) error {
	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Internal(err)
	}

	fields := make(map[string][]string)
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], message(fe))
	}
	return apperrors.Validation("Validation failed", fields)
}

// Decode reads a JSON body into dst and validates it.
func (v *Validator) Decode(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil && err != io.EOF {
		return apperrors.Validation("Invalid request body", nil)
	}
	return v.Struct(dst)
}

func message(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "email":
		return "Invalid email address"
	case "url":
		return fmt.Sprintf("Invalid %s", strings.ToLower(label))
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "password":
		return "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

// fieldLabel turns "refreshToken" or "redirect_uri" into "Refresh token" /
// "Redirect uri".
func fieldLabel(field string) string {
	var b strings.Builder
	for i, r := range field {
		switch {
		case r == '_':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && i > 0:
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
