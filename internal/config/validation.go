package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	nixgenerrors "nixgen/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// validatorInstance configures and returns the shared validator instance
// used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("env_name", func(fl validator.FieldLevel) bool {
			return envNamePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})
	return validateInst
}

// ValidateSettings performs structural validation on a parsed settings file.
func ValidateSettings(settings *Settings) error {
	if settings == nil {
		return nixgenerrors.NewValidationError("settings", "settings are nil", nil)
	}

	if err := validatorInstance().Struct(settings); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func convertValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nixgenerrors.NewValidationError("settings", err.Error(), err)
	}

	messages := make([]string, 0, len(validationErrs))
	field := "settings"
	for _, fieldErr := range validationErrs {
		field = strings.ToLower(fieldErr.Field())
		messages = append(messages, fmt.Sprintf("%s failed %q validation", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return nixgenerrors.NewValidationError(field, strings.Join(messages, "; "), err)
}
