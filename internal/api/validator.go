package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the shared validator instance; building one is
// expensive enough to do once.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks a payload against its `validate` field tags and
// flattens failures into one readable message.
func validateRequest(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validation: %s", err.Error())
	}

	var messages []string
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed on the '%s' rule", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("validation: %s", strings.Join(messages, "; "))
}
