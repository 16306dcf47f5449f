package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validator validates request structs using `validate` tags.
// Supported rules: required, max=N (characters), oneof=a|b.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// FieldError describes one failing field
type FieldError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			err.Field = fieldName(fieldType)
			return err
		}
	}

	return nil
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) *FieldError {
	for _, rule := range strings.Split(tag, ",") {
		name, arg, _ := strings.Cut(rule, "=")

		switch name {
		case "required":
			if field.Kind() == reflect.String {
				if strings.TrimSpace(field.String()) == "" {
					return &FieldError{Rule: name, Msg: "field is required"}
				}
			} else if field.IsZero() {
				return &FieldError{Rule: name, Msg: "field is required"}
			}

		case "max":
			max, err := strconv.Atoi(arg)
			if err != nil || field.Kind() != reflect.String {
				continue
			}
			if utf8.RuneCountInString(field.String()) > max {
				return &FieldError{Rule: name, Msg: fmt.Sprintf("maximum length is %d", max)}
			}

		case "oneof":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			allowed := strings.Split(arg, "|")
			ok := false
			for _, a := range allowed {
				if field.String() == a {
					ok = true
					break
				}
			}
			if !ok {
				return &FieldError{Rule: name, Msg: "must be one of " + strings.Join(allowed, ", ")}
			}
		}
	}

	return nil
}

// fieldName prefers the json name
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}
