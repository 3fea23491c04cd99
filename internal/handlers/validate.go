package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// normalizer is implemented by requests that clean their fields before validation.
type normalizer interface {
	normalize()
}

// bindJSON decodes the request body into dst and validates it. The message is safe to return
// to clients.
func bindJSON(r *http.Request, dst any) (string, bool) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return "invalid request body", false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return validateRequest(dst)
}

func validateRequest(v any) (string, bool) {
	err := requestValidator.Struct(v)
	if err == nil {
		return "", true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request", false
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field()), false
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field()), false
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()), false
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()), false
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()), false
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()), false
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()), false
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()), false
	default:
		return fmt.Sprintf("%s is invalid", fe.Field()), false
	}
}
