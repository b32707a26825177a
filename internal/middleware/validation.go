package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"stockroom/internal/domain"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies; a product form is a few hundred bytes
const maxBodyBytes = 1 << 20

// Validator instance; field errors are reported by JSON name
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}()

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateRequest validates a struct with validation tags
func ValidateRequest(v interface{}) error {
	return validate.Struct(v)
}

// DecodeJSON decodes a JSON request body, keeping numbers as json.Number
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	details := make(map[string]interface{})
	details["validation_errors"] = errs

	RespondWithErrorDetails(w, http.StatusBadRequest, "validation failed", details)
}

// FormatValidationErrors converts validator or record schema errors to a
// readable list ordered by field name
func FormatValidationErrors(err error) []ValidationError {
	var errs []ValidationError

	var schemaErr *domain.ValidationError
	if errors.As(err, &schemaErr) {
		for _, field := range schemaErr.SortedFields() {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: schemaErr.Fields[field],
			})
		}
		return errs
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			errs = append(errs, ValidationError{
				Field:   e.Field(),
				Message: getErrorMessage(e),
			})
		}
	}

	return errs
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gte":
		return "Value must be greater than or equal to " + e.Param()
	case "lte":
		return "Value must be less than or equal to " + e.Param()
	case "uuid", "uuid4":
		return "Value must be a UUID"
	default:
		return "Invalid value"
	}
}
