package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags plus cross-field rules.
// Returns an error with actionable messages when validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field: sync roots require a canonical document.
	if len(c.Sync.Roots) > 0 && c.Sync.CanonicalPath == "" {
		return errors.New("sync: canonical_path is required when roots are configured")
	}

	return nil
}

// formatValidationErrors converts validator errors into readable messages.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fieldPath(fe)))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fieldPath(fe), fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fieldPath(fe), fe.Param()))
		case "hostname_port":
			msgs = append(msgs, fmt.Sprintf("%s must be a host:port address", fieldPath(fe)))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fieldPath(fe), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath renders a field reference like "store.path" from the validator
// namespace, dropping the root struct name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}
