package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/ajpd/pkg/adapter/ajp"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.AJP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	a := &cfg.Adapters.AJP

	if a.Transport.Type == ajp.TransportUnix && a.Unix.Path == "" {
		return fmt.Errorf("adapters.ajp.transport.options.path: required for the unix transport")
	}

	if a.Processors.MaxTotal > 0 && a.Processors.MaxIdle > a.Processors.MaxTotal {
		return fmt.Errorf("adapters.ajp.processors: max_idle (%d) exceeds max_total (%d)",
			a.Processors.MaxIdle, a.Processors.MaxTotal)
	}

	if a.Processors.IdleTTL > 0 && a.Processors.TrimInterval <= 0 {
		return fmt.Errorf("adapters.ajp.processors: trim_interval must be set when idle_ttl is")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == a.Port && a.Transport.Type == ajp.TransportTCP {
		return fmt.Errorf("server.metrics.port: conflicts with adapters.ajp.port (%d)", a.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
