// Package onboarding validates the identity a visitor gives before chatting.
package onboarding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/concierge/internal/chat"
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrPhoneRequired = errors.New("phone is required")
	ErrPhoneInvalid  = errors.New("phone is invalid")
)

// Rules constrain the accepted phone numbers. The phone must start with
// Prefix, contain only ASCII digits and be at least MinLength long.
type Rules struct {
	Prefix    string
	MinLength int
}

func DefaultRules() Rules {
	return Rules{Prefix: "08", MinLength: 10}
}

// Validate trims both fields and returns the profile to store on the session.
func Validate(name, phone string, rules Rules) (chat.Profile, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return chat.Profile{}, ErrNameRequired
	}
	if phone == "" {
		return chat.Profile{}, ErrPhoneRequired
	}
	if !strings.HasPrefix(phone, rules.Prefix) {
		return chat.Profile{}, fmt.Errorf("%w: must start with %q", ErrPhoneInvalid, rules.Prefix)
	}
	if !isDigits(phone) {
		return chat.Profile{}, fmt.Errorf("%w: digits only", ErrPhoneInvalid)
	}
	if len(phone) < rules.MinLength {
		return chat.Profile{}, fmt.Errorf("%w: at least %d digits", ErrPhoneInvalid, rules.MinLength)
	}
	return chat.Profile{Name: name, Phone: phone}, nil
}

// Greeting fills the name into template. A template without a %s verb is used
// as-is.
func Greeting(template, name string) string {
	if template == "" {
		return ""
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, name)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
