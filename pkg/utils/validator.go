// Package utils holds request validation and parsing helpers shared by the application layer.
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
)

// DateLayout is the calendar-day format accepted by the API.
const DateLayout = "2006-01-02"

var defaultValidator = validator.New()

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// ValidateStruct validates a struct using the default validator.
// It returns an INVALID_INPUT error with one detail per failing field.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrInvalidInput("%v", err)
	}
	details := make(map[string]string, len(validationErrors))
	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		name := toSnakeCase(fe.Field())
		details[name] = formatValidationError(fe)
		fields = append(fields, name)
	}
	return errors.ErrInvalidInput("invalid request: %s", strings.Join(fields, ", ")).
		WithMetadata("fields", details)
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "datetime":
		return fmt.Sprintf("must be a date in %s form", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be greater than %s", toSnakeCase(fe.Param()))
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// toSnakeCase converts a string from CamelCase to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}

// ParseUUID parses s or returns an INVALID_INPUT error naming field.
func ParseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidInput("%s must be a valid UUID, got %q", field, s)
	}
	return id, nil
}

// ParseDate parses a YYYY-MM-DD day as midnight UTC.
func ParseDate(field, s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.ErrInvalidInput("%s must be a date in %s form, got %q", field, DateLayout, s)
	}
	return d, nil
}

// ParseBand parses a band letter, accepting lower case.
func ParseBand(s string) (constants.Band, error) {
	b := constants.Band(strings.ToUpper(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", errors.ErrInvalidInput("unknown band %q", s)
	}
	return b, nil
}

// ParseBandMap converts a string-keyed band map.
func ParseBandMap[V any](in map[string]V) (map[constants.Band]V, error) {
	out := make(map[constants.Band]V, len(in))
	for k, v := range in {
		b, err := ParseBand(k)
		if err != nil {
			return nil, err
		}
		out[b] = v
	}
	return out, nil
}
