package library

import (
	"errors"
	"fmt"
)

// RecordError describes one entry rejected by an import or restore.
type RecordError struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewRecordError returns a RecordError wrapping err.
func NewRecordError(kind, name string, err error, format string, args ...any) *RecordError {
	return &RecordError{Kind: kind, Name: name, Reason: fmt.Sprintf(format, args...), Err: err}
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Reason)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Report lists the outcome of an import or restore.
type Report struct {
	Loaded  []string       `json:"loaded"`
	Skipped []*RecordError `json:"skipped,omitempty"`
}

// Err joins the skipped entries into one error, or returns nil.
func (r Report) Err() error {
	errs := make([]error, len(r.Skipped))
	for i, e := range r.Skipped {
		errs[i] = e
	}
	return errors.Join(errs...)
}
