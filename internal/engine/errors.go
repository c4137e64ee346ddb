package engine

import "errors"

// ErrConfirmationRequired is returned by destructive administrative
// operations called without confirmation.
var ErrConfirmationRequired = errors.New("confirmation required for destructive operation")

// ErrEmptyTag is returned when tagging with a blank name.
var ErrEmptyTag = errors.New("tag name must not be empty")
