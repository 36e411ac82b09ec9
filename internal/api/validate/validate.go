// Package validate decodes and validates JSON request bodies.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return domain.IsKnownEventType(fl.Field().String())
	})
	return v
}

// DecodeJSON strictly decodes body into dest and validates it. Unknown fields
// are rejected.
func DecodeJSON(body []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return domain.ErrBadRequest.WithMessage("Invalid request body").WithError(err)
	}
	return Struct(dest)
}

// Struct runs struct-tag validation and maps failures to ErrValidationFailed
// with one message per JSON field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ErrValidationFailed.WithError(err)
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fieldPath(fe)] = message(fe)
	}
	return domain.ErrValidationFailed.WithDetails(details)
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "event_type":
		return "is not a known event type"
	case "dive", "unique":
		return "contains duplicate or invalid entries"
	}
	return "is invalid"
}
