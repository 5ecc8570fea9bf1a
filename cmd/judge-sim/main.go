package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/gavel/internal/judgesim"
)

// Default configuration constants.
const (
	defaultSubmissions = 60
	defaultJudges      = 12
	defaultLocations   = 10
	defaultDuplicates  = 2
	defaultNoShowRate  = 0.1
	defaultTimeout     = 10 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		submissions = flag.Int("submissions", defaultSubmissions, "Submissions to seed")
		judges      = flag.Int("judges", defaultJudges, "Judges to seed")
		locations   = flag.Int("locations", defaultLocations, "Distinct venue locations")
		rounds      = flag.Int("rounds", 0, "Max assignments per judge, 0 = until exhausted")
		duplicates  = flag.Int("duplicates", defaultDuplicates, "Extra concurrent copies of every request")
		concurrency = flag.Int("concurrency", runtime.NumCPU(), "Judges walking at once")
		noShow      = flag.Float64("no-show", defaultNoShowRate, "Share of no-show completions")
		minCoverage = flag.Int("min-coverage", 0, "Required ratings per submission, 0 = report only")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Seed for layout and ratings")
		idOffset    = flag.Int64("id-offset", time.Now().Unix()%1_000_000*1000, "Added to seeded IDs")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile     = flag.String("log", "", "Log file (default: judge_sim_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Log every rated assignment")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		judgesim.ShowHelp()
		return
	}

	closer, err := judgesim.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)

	cfg := &judgesim.Config{
		BaseURL:     *baseURL,
		Submissions: *submissions,
		Judges:      *judges,
		Locations:   *locations,
		Rounds:      *rounds,
		Duplicates:  *duplicates,
		Concurrency: *concurrency,
		NoShowRate:  *noShow,
		MinCoverage: *minCoverage,
		Seed:        *seed,
		Timeout:     *timeout,
		IDOffset:    *idOffset,
		Verbose:     *verbose,
	}

	_, runErr := judgesim.Run(ctx, cfg)
	cancel()
	_ = closer.Close()
	if runErr != nil {
		os.Stderr.WriteString("Simulation failed: " + runErr.Error() + "\n")
		os.Exit(1)
	}
}
