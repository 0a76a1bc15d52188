package transform

import (
	"errors"
	"fmt"
)

// ErrMissingInput is matched by every MissingInputError
var ErrMissingInput = errors.New("missing input file")

// MissingInputError reports a required raw extract absent from the bronze snapshot
type MissingInputError struct {
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingInput, e.Path)
}

func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// ValidationError identifies the table and rule that failed the validation gate
type ValidationError struct {
	Table   string
	Rule    string
	Count   int
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s violates %s (%d rows): %s", e.Table, e.Rule, e.Count, e.Details)
}
