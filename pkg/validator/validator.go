// Package validator wraps go-playground/validator for the request payloads the
// admin API binds: field names surface under their json tags, and the
// domain-specific rules live here so every handler shares one validator.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// ValidationError is a single field failure, keyed by the field's json name.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects every failed rule of one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct runs the struct's validate tags and converts failures into
// ValidationErrors. Any other error from the underlying validator passes
// through unchanged.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}

		comma := strings.Index(name, ",")
		if comma != -1 {
			name = name[:comma]
		}

		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// menupath: a rooted navigation path like "/user", no trailing slash and
	// no embedded whitespace. Menu create/update payloads rely on it.
	if err := v.RegisterValidation("menupath", func(fl validator.FieldLevel) bool {
		return isMenuPath(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

func isMenuPath(path string) bool {
	if len(path) < 2 || path[0] != '/' {
		return false
	}
	if strings.HasSuffix(path, "/") {
		return false
	}
	return !strings.ContainsAny(path, " \t\n")
}
