package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldsValidationError builds a ValidationError whose message is `msg`, one FieldError per field.
func NewFieldsValidationError(msg string, fields ...string) error {
	flds := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		flds = append(flds, FieldError{Field: f, Error: msg})
	}
	return &ValidationError{errors.New(msg), flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}
