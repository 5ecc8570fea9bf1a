package config

import "errors"

var (
	// ErrInvalidConfig is returned by Validate for out-of-range or
	// contradictory settings.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures of the file and env providers.
	ErrLoadConfig = errors.New("load config failed")
)
