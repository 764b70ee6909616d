package ref

import "errors"

// ErrInvalidReference indicates a malformed reference, selector, or key.
var ErrInvalidReference = errors.New("invalid space reference")

// ParseError records which input failed to parse.
type ParseError struct {
	Input string
	Err   error
}

// Error returns the input alongside the underlying reason.
func (e *ParseError) Error() string {
	return "parsing " + `"` + e.Input + `"` + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
