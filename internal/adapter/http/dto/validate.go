package dto

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iho/storeledger/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Money validates as a number so gt/gte tags apply to it.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if m, ok := field.Interface().(domain.Money); ok {
			return m.Decimal().InexactFloat64()
		}
		return nil
	}, domain.Money{})

	// Report JSON names rather than Go field names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError maps request fields to the rule they broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = f + ": " + e.Fields[f]
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Unwrap lets domain.Classify treat request validation like any other
// validation failure.
func (e *ValidationError) Unwrap() error { return domain.ErrInvalidInput }

// Validate runs the validate tags of req.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), rootName(fe)+".")
		fields[field] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// rootName is the struct name validator puts at the front of a namespace.
func rootName(fe validator.FieldError) string {
	root, _, _ := strings.Cut(fe.Namespace(), ".")
	return root
}
