package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator instance
var validate *validator.Validate

// MoneyScale is the number of decimal places stored for money.
const MoneyScale = 2

// MaxMoney is the largest amount a NUMERIC(14,2) column holds.
var MaxMoney = decimal.RequireFromString("999999999999.99")

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Validate decimal.Decimal fields as strings so precision is never lost.
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return d.IsPositive()
	})

	validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return IsMoney(d)
	})
}

// IsMoney reports whether d is a positive amount with at most MoneyScale decimal places
// and no larger than MaxMoney.
func IsMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(MoneyScale)) && d.LessThanOrEqual(MaxMoney)
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		errors[err.Field()] = message(err.Tag(), err.Param())
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// MoneyMessage is the field message for an amount that fails IsMoney.
const MoneyMessage = "Value must be a positive amount with at most 2 decimal places"

func message(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short (min: " + param + ")"
	case "max":
		return "Value is too long (max: " + param + ")"
	case "positive_decimal":
		return "Value must be a positive amount"
	case "money":
		return MoneyMessage
	default:
		return "Invalid value"
	}
}
