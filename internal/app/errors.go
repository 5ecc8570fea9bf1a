package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrUnknownDriver = errors.New("unknown store driver")
)
