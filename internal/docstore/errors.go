package docstore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrValidation marks a record or argument the store refuses to accept.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidQuery marks a malformed query or condition.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCorrupt marks a stored value that cannot be read back as a record.
	ErrCorrupt = errors.New("corrupt record")
)

// Failure is one record that could not be processed by a batch operation.
type Failure struct {
	Key string
	Err error
}

// BatchError is returned by Update and Delete when some matched records
// failed. Records not listed were processed successfully.
type BatchError struct {
	Op       string
	Failures []Failure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
	return fmt.Sprintf("%s failed for %d record(s): %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
