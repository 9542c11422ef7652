package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their json (or query) name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds req, applies its default tags and validates
// it. It returns nil or a []ValidationError ready to be rendered.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		out := make([]ValidationError, 0, len(fields))
		for _, fe := range fields {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
}

var tagMessages = map[string]string{
	"required": "%s is required",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be at least %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be at most %s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"oneof":    "%s must be one of: %s",
	"dive":     "%s contains an invalid element",
}

func fieldMessage(fe validator.FieldError) string {
	tmpl, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	param := fe.Param()
	switch fe.Tag() {
	case "oneof":
		param = strings.ReplaceAll(param, " ", ", ")
	case "min", "max":
		switch fe.Kind() {
		case reflect.String:
			param += " characters"
		case reflect.Slice, reflect.Map:
			param += " items"
		}
	}
	if strings.Count(tmpl, "%s") == 1 {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	return fmt.Sprintf(tmpl, fe.Field(), param)
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	if fe.Param() == "" {
		return nil
	}
	if fe.Tag() == "oneof" {
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	}
	return map[string]interface{}{fe.Tag(): fe.Param()}
}
