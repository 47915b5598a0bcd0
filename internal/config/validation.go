package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hengadev/errsx"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/keys"
)

// Validator checks a Config against its validate tags and the cross-field
// rules tags cannot express.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports fields by their YAML names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("fieldcrypt_key", func(fl validator.FieldLevel) bool {
		return keys.IsValid(fl.Field().String())
	})
	return &Validator{validate: v}
}

// ValidateConfig returns nil or an errsx.Map keyed by setting path, e.g.
// "log.level" or "fields[user]".
func (v *Validator) ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config cannot be nil", fcerr.ErrInvalidConfiguration)
	}

	var errs errsx.Map
	if err := v.validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return fmt.Errorf("%w: %w", fcerr.ErrInvalidConfiguration, err)
		}
		for _, e := range validationErrs {
			errs.Set(settingPath(e.Namespace()), formatFieldError(e))
		}
	}

	for _, table := range cfg.ExcludeTables {
		if _, ok := cfg.Fields[table]; ok {
			errs.Set("exclude_tables", fmt.Errorf("%w: table '%s' is both excluded and configured with fields",
				fcerr.ErrInvalidConfiguration, table))
		}
	}
	return errs.AsError()
}

// settingPath drops the root type name from a validator namespace.
func settingPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func formatFieldError(e validator.FieldError) error {
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", fcerr.ErrInvalidConfiguration, e.Field())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s], got '%v'", fcerr.ErrInvalidConfiguration, e.Field(), e.Param(), e.Value())
	case "min":
		return fmt.Errorf("%w: %s must have at least %s entries", fcerr.ErrInvalidConfiguration, e.Field(), e.Param())
	case "fieldcrypt_key":
		return fmt.Errorf("%w: key must be %d to %d printable characters", fcerr.ErrInvalidKey, keys.MinKeyLength, keys.MaxKeyLength)
	default:
		return fmt.Errorf("%w: %s failed '%s' validation", fcerr.ErrInvalidConfiguration, e.Field(), e.Tag())
	}
}
