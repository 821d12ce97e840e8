package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"date.required": "Date is required",
	"meal.required": "Meal must be either lunch or dinner",
	"meal.oneof":    "Meal must be either lunch or dinner",
	"reason.min":    "Reason is required",
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}

// bindBookingRequest decodes and validates the JSON body. Any failure is
// returned as a *ValidationError.
func bindBookingRequest(c *gin.Context) (BookingRequest, error) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, decodeError(err)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return req, err
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: messageFor(fe)})
		}
		return req, out
	}
	return req, nil
}

func decodeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: "Request body is required"}}}
	case errors.As(err, &typeErr):
		return &ValidationError{Fields: []FieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("Expected %s", typeErr.Type.String()),
		}}}
	default:
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: "Malformed JSON"}}}
	}
}
