package receipt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound marks a lookup for a receipt ID that does not exist. Callers
// check it with errors.Is to map the failure to a 404 instead of a generic
// persistence error.
var ErrNotFound = errors.New("receipt not found")

// ErrSubmitInFlight is returned when a submission starts while another one
// is still running. The submit control is single-flight.
var ErrSubmitInFlight = errors.New("a submission is already in progress")

// ValidationError carries field-scoped messages for a malformed draft or
// patch. It is always produced locally, before any network or storage call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError unwraps err into a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
