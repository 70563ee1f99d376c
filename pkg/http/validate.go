package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"BrentShift/pkg/util"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	// Report fields by their wire name so clients can map errors back to parameters.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.Split(f.Tag.Get(tag), ",")[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := util.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("notbefore", notBefore)
	return v
}

// notBefore checks that a date field does not precede the sibling named by the param.
// Either side being empty or unparsable is left to the other rules.
func notBefore(fl validator.FieldLevel) bool {
	other := fl.Parent().FieldByName(fl.Param())
	if !other.IsValid() || other.Kind() != reflect.String {
		return false
	}
	to, err := util.ParseDate(fl.Field().String())
	if err != nil {
		return true
	}
	from, err := util.ParseDate(other.String())
	if err != nil {
		return true
	}
	return !to.Before(from)
}

// Validator adapts the package validator to echo.Validator.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (Validator) Validate(i interface{}) error { return validate.Struct(i) }

// ReadAndValidateRequest binds req, applies its defaults and validates it.
// A non-nil result is the list of ValidationError to send back.
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
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: messageFor(fe),
				Params:  paramsFor(fe),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

func messageFor(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "date":
		return fmt.Sprintf("%s must be a date such as 2020-04-22", field)
	case "notbefore":
		return fmt.Sprintf("%s must not be before %s", field, wireName(fe))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func paramsFor(fe validator.FieldError) map[string]interface{} {
	params := make(map[string]interface{})
	switch fe.Tag() {
	case "min", "gte":
		params["min"] = fe.Param()
	case "max", "lte":
		params["max"] = fe.Param()
	case "gt", "lt":
		params["value"] = fe.Param()
	case "oneof":
		params["options"] = strings.Split(fe.Param(), " ")
	case "notbefore":
		params["field"] = wireName(fe)
	}
	return params
}

// wireName maps the Go field named by a cross-field param to its snake_case wire name.
func wireName(fe validator.FieldError) string {
	var b strings.Builder
	for i, r := range fe.Param() {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
