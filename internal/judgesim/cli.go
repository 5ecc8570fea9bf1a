package judgesim

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/gavel/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends logs to stdout and to logFile.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) (io.Closer, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "judge_sim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the judge simulator.
func ShowHelp() {
	os.Stdout.WriteString(`gavel judge simulator
=====================

Seeds a venue on a running gavel service, walks judges through
next/rate loops with duplicated requests, and verifies that no judge saw
a submission twice, priorities rise without gaps, and coverage holds.

Usage:
  go run ./cmd/judge-sim [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -submissions int     Submissions to seed (default 60)
  -judges int          Judges to seed (default 12)
  -locations int       Distinct venue locations (default 10)
  -rounds int          Max assignments per judge, 0 = until exhausted (default 0)
  -duplicates int      Extra concurrent copies of every request (default 2)
  -concurrency int     Judges walking at once (default CPU cores)
  -no-show float       Share of no-show completions (default 0.1)
  -min-coverage int    Required ratings per submission, 0 = report only
  -seed int            Seed for layout and ratings (default: clock)
  -id-offset int       Added to seeded IDs (default: clock based)
  -timeout duration    HTTP request timeout (default 10s)
  -log string          Log file (default: judge_sim_TIMESTAMP.log)
  -verbose             Log every rated assignment
  -help                Show this help message

Examples:
  go run ./cmd/judge-sim -judges 20 -submissions 100 -min-coverage 2
`)
}
