package web

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// GetErrorMsg returns human readable suffix for the failed validation of the field.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "min":
		return " must be at least " + fe.Param() + unit(fe)
	case "max":
		return " must be at most " + fe.Param() + unit(fe)
	case "money":
		return " must be a positive amount with at most two decimals"
	}

	return " is invalid"
}

// BindingError converts the error returned by gin binding into a response.
func BindingError(err error) Response {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return Response{Error: ve[0].Field() + GetErrorMsg(ve[0])}
	}

	return Response{Error: "invalid request body"}
}

func unit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters long"
	}

	return ""
}
