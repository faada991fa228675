package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validation
// tags. Returned errors name the offending field and constraint.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			first := verrs[0]
			return fmt.Errorf("field %s failed constraint %q (value: %v)",
				first.Namespace(), first.Tag(), first.Value())
		}
		return err
	}
	return nil
}
