// Package validate builds composable string checks for request fields.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validator is a function that validates a string and returns an error if invalid
type Validator func(value string) error

// Field prefixes the first failure with the field name: "Topic must be ...".
func Field(name string, validators ...Validator) Validator {
	check := Compose(validators...)
	return func(value string) error {
		if err := check(value); err != nil {
			if strings.HasPrefix(err.Error(), name) {
				return err
			}
			return fmt.Errorf("%s %w", name, err)
		}
		return nil
	}
}

// Compose chains multiple validators; first error wins
func Compose(validators ...Validator) Validator {
	return func(value string) error {
		for _, v := range validators {
			if err := v(value); err != nil {
				return err
			}
		}
		return nil
	}
}

// Optional skips the remaining validators when the value is empty.
func Optional(validators ...Validator) Validator {
	check := Compose(validators...)
	return func(value string) error {
		if value == "" {
			return nil
		}
		return check(value)
	}
}

func Required() Validator {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("is required")
		}
		return nil
	}
}

// LengthBetween counts characters, not bytes.
func LengthBetween(min, max int) Validator {
	return func(v string) error {
		n := utf8.RuneCountInString(v)
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d characters", min, max)
		}
		return nil
	}
}

func MaxLength(max int) Validator {
	return func(v string) error {
		if utf8.RuneCountInString(v) > max {
			return fmt.Errorf("must be no more than %d characters", max)
		}
		return nil
	}
}

func Length(exact int) Validator {
	return func(v string) error {
		if utf8.RuneCountInString(v) != exact {
			return fmt.Errorf("must be exactly %d characters", exact)
		}
		return nil
	}
}

func DigitsOnly() Validator {
	return func(v string) error {
		for _, c := range v {
			if !unicode.IsDigit(c) {
				return fmt.Errorf("must contain only digits")
			}
		}
		return nil
	}
}

func OneOf(allowed ...string) Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(v string) error {
		if _, ok := set[v]; !ok {
			return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
		}
		return nil
	}
}

// Matches checks if value matches a regex with a custom message
func Matches(pattern, message string) Validator {
	re := regexp.MustCompile(pattern)
	return func(v string) error {
		if !re.MatchString(v) {
			if message != "" {
				return fmt.Errorf("%s", message)
			}
			return fmt.Errorf("has an invalid format")
		}
		return nil
	}
}

// Printable rejects control characters other than newlines and tabs.
func Printable() Validator {
	return func(v string) error {
		for _, r := range v {
			if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
				return fmt.Errorf("must not contain control characters")
			}
		}
		return nil
	}
}

// IntBetween checks an integer field. The name is used in the message.
func IntBetween(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return nil
}
