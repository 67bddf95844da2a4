// Package validate collects field-level input errors before anything is
// sent to the backend.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FieldError is one rejected input field
type FieldError struct {
	Field   string
	Message string
}

// Errors accumulates field errors. The zero value is ready to use.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Add records a message for field
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was recorded
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Has reports whether field was rejected
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Length checks that s has between min and max characters
func (e *Errors) Length(field, label, s string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	switch {
	case n == 0 && min > 0:
		e.Add(field, label+" is required")
	case n < min:
		e.Add(field, fmt.Sprintf("%s must be at least %d characters", label, min))
	case max > 0 && n > max:
		e.Add(field, fmt.Sprintf("%s must be %d characters or less", label, max))
	}
}

// Email checks s is a bare email address
func (e *Errors) Email(field, s string) {
	if strings.TrimSpace(s) == "" {
		e.Add(field, "Email is required")
		return
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		e.Add(field, "Invalid email address")
	}
}

// Password enforces the account password policy
func (e *Errors) Password(field, s string) {
	n := utf8.RuneCountInString(s)
	if n < 8 {
		e.Add(field, "Password must be at least 8 characters")
		return
	}
	if n >= 128 {
		e.Add(field, "Password must be less than 128 characters")
		return
	}

	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		e.Add(field, "Password must contain at least one uppercase letter")
	}
	if !lower {
		e.Add(field, "Password must contain at least one lowercase letter")
	}
	if !digit {
		e.Add(field, "Password must contain at least one digit")
	}
}
