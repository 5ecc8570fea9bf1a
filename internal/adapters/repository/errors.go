package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflicting write")
	ErrAlreadyCompleted = errors.New("assignment already completed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrClosed           = errors.New("store closed")
)

func errInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
