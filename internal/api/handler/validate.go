package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/breatheroute/privacydesk/internal/api/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// validate is shared by all handlers. Field errors are reported by JSON name.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errBadBody is returned by decode for malformed JSON.
var errBadBody = errors.New("request body must be a JSON object")

// decode reads a JSON body into dst and validates it. A non-nil slice of
// field errors means validation failed.
func decode(r *http.Request, dst interface{}) ([]models.FieldError, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	return fieldErrors(validate.Struct(dst)), nil
}

// fieldErrors converts validator output into problem field errors.
func fieldErrors(err error) []models.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]models.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, models.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
			Code:    fieldCode(fe.Tag()),
		})
	}
	return out
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func fieldCode(tag string) string {
	switch tag {
	case "required":
		return models.CodeRequired
	case "max":
		return models.CodeTooLong
	default:
		return models.CodeInvalid
	}
}
