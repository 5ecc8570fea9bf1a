// Package judgesim drives a running gavel service the way a hall full of
// judges would and checks the assignment invariants afterwards.
package judgesim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Submissions int           // Number of submissions to seed
	Judges      int           // Number of judges to seed
	Locations   int           // Number of distinct venue locations
	Rounds      int           // Max assignments per judge, 0 = until none are eligible
	Duplicates  int           // Extra concurrent copies of every next request
	Concurrency int           // Judges walking at the same time
	NoShowRate  float64       // Share of assignments completed as no-show
	MinCoverage int           // Required completed ratings per submission, 0 = report only
	Seed        int64         // Seed for venue layout and ratings
	Timeout     time.Duration // HTTP request timeout
	IDOffset    int64         // Added to every seeded ID so runs do not collide
	Verbose     bool          // Enable verbose logging
}

// Stats holds simulation statistics.
type Stats struct {
	Requests     int64
	Replays      int64
	Created      int64
	Completed    int64
	NoShows      int64
	Exhausted    int64
	Backpressure int64
	Failed       int64
	MinCoverage  int
	MaxCoverage  int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}
