// Package validate provides small composable string validators.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validator is a function that validates a string and returns an error if invalid
type Validator func(value string) error

// Field creates a labeled validator with a custom name for better error messages
func Field(name string, validators ...Validator) Validator {
	return func(value string) error {
		for _, v := range validators {
			if err := v(value); err != nil {
				if !strings.Contains(err.Error(), name) {
					return fmt.Errorf("%s: %w", name, err)
				}
				return err
			}
		}
		return nil
	}
}

// Compose chains multiple validators, first error wins
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

func Required() Validator {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("this field is required")
		}
		return nil
	}
}

func MaxLength(max int) Validator {
	return func(v string) error {
		if len(v) > max {
			return fmt.Errorf("must be no more than %d characters", max)
		}
		return nil
	}
}

// Matches checks if value matches a regex, reporting message on mismatch
func Matches(pattern, message string) Validator {
	re := regexp.MustCompile(pattern)
	return func(v string) error {
		if !re.MatchString(v) {
			if message != "" {
				return fmt.Errorf("%s", message)
			}
			return fmt.Errorf("invalid format")
		}
		return nil
	}
}

func OneOf(allowed ...string) Validator {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(v string) error {
		if !set[v] {
			return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
		}
		return nil
	}
}

func NoSpaces() Validator {
	return Matches(`^\S+$`, "must not contain spaces")
}

// UUID accepts only the canonical 8-4-4-4-12 hyphenated form.
func UUID() Validator {
	return func(v string) error {
		if len(v) != 36 {
			return fmt.Errorf("must be a UUID")
		}
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("must be a UUID")
		}
		return nil
	}
}

// SnakeCase accepts lowercase words joined by single underscores.
func SnakeCase() Validator {
	return Matches(`^[a-z]+(_[a-z]+)*$`, "must be lowercase words separated by underscores")
}

// IsUUID is a convenience wrapper around UUID.
func IsUUID(v string) bool {
	return UUID()(v) == nil
}
