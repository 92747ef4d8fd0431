package model

import "errors"

// ErrUnauthenticated is returned when an operation requiring a caller
// identity is invoked without one. Raised before any field validation.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError marks a caller-correctable input error. The message is
// deterministic for a given invalid input and is surfaced verbatim to the
// caller with an INVALID_INPUT code.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }
