package validate

import (
	"fmt"
	"strings"
)

// FieldError describes a single invalid field in a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field errors for a payload. It implements error and
// surfaces to callers as a 400 with a structured details object.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Details returns the errors as a field -> message map for the
// response envelope.
func (e Errors) Details() map[string]string {
	details := make(map[string]string, len(e))
	for _, fe := range e {
		details[fe.Field] = fe.Message
	}
	return details
}

func (e *Errors) add(field, format string, args ...any) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns the collected errors as an error, or nil if empty.
func (e Errors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
