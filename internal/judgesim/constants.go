package judgesim

import "time"

// Defaults used when a Config field is left zero.
const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
	defaultLocations   = 10
)

// Retry settings for requests rejected with backpressure.
const (
	backpressureRetries = 5
	backpressureDelay   = 20 * time.Millisecond
)

// Rating bounds sent by simulated judges.
const (
	minRating = 1
	maxRating = 10
)
