// Package scoring ranks plausible submissions for a judge by combining a
// random tie-breaker, a locality bonus and a coverage bonus.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/internal/domain/venue"
)

// Default scoring configuration constants.
const (
	defaultTieBreakScale     = 0.001
	defaultCoverageBonus     = 10.0
	defaultCoverageThreshold = 2
	defaultTopN              = 3
)

// defaultLocalityBonuses are indexed by forward distance minus one.
var defaultLocalityBonuses = []float64{1.5, 1.4, 1.3} //nolint:gochecknoglobals // read-only defaults

// ErrNoCandidates is returned when Select is called with no plausible submissions.
var ErrNoCandidates = errors.New("no candidate submissions")

// RandSource supplies the tie-breaking randomness. *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// CoverageCounter reports completed ratings per submission.
type CoverageCounter interface {
	CompletedRatingCount(ctx context.Context, submissionID int64) (int, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRandSource injects the random source used for tie-breaking.
func WithRandSource(src RandSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.rng = src
		}
	}
}

// WithSeed seeds a private math/rand source. Zero keeps the default.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		if seed != 0 {
			e.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // tie-breaking, not security
		}
	}
}

// WithTieBreakScale sets the upper bound of the random base score.
func WithTieBreakScale(scale float64) Option {
	return func(e *Engine) {
		if scale > 0 {
			e.tieBreakScale = scale
		}
	}
}

// WithLocalityBonuses sets the bonus for forward distance 1, 2, ... in order.
func WithLocalityBonuses(bonuses []float64) Option {
	return func(e *Engine) {
		if len(bonuses) > 0 {
			e.localityBonuses = append([]float64(nil), bonuses...)
		}
	}
}

// WithCoverage sets the completed-rating threshold and the bonus given
// to submissions below it.
func WithCoverage(threshold int, bonus float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.coverageThreshold = threshold
		}
		if bonus > 0 {
			e.coverageBonus = bonus
		}
	}
}

// WithDistanceMode selects the venue walk semantics.
func WithDistanceMode(mode venue.Mode) Option {
	return func(e *Engine) {
		e.distanceMode = mode
	}
}

// WithTopN sets how many ranked candidates are kept in a Result.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// SelectInput is everything Select needs for one decision.
type SelectInput struct {
	// Plausible lists the candidate submission IDs.
	Plausible []int64
	// Reference is the judge's last location, negative when unknown.
	Reference int
	// Venue is every submission, active or not; distance depends on the
	// whole layout.
	Venue []model.Submission
	// Coverage answers completed-rating counts.
	Coverage CoverageCounter
}

// Candidate is one scored submission.
type Candidate struct {
	SubmissionID     int64
	Score            float64
	TieBreak         float64
	LocalityBonus    float64
	CoverageBonus    float64
	Distance         int // -1 when locality was not computed
	CompletedRatings int
}

// Result is the outcome of a selection.
type Result struct {
	Best Candidate
	// Top holds the best ranked candidates, best first.
	Top []Candidate
	// Considered is the number of plausible candidates scored.
	Considered int
	// LocalityUsed is false when the reference location was unknown.
	LocalityUsed bool
}

// Engine scores candidates. It is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex // guards rng
	rng RandSource

	tieBreakScale     float64
	localityBonuses   []float64
	coverageBonus     float64
	coverageThreshold int
	distanceMode      venue.Mode
	topN              int
}

// NewEngine creates a scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // tie-breaking, not security
		tieBreakScale:     defaultTieBreakScale,
		localityBonuses:   append([]float64(nil), defaultLocalityBonuses...),
		coverageBonus:     defaultCoverageBonus,
		coverageThreshold: defaultCoverageThreshold,
		distanceMode:      venue.ModeFromReference,
		topN:              defaultTopN,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Select scores every plausible submission and returns the best one.
func (e *Engine) Select(ctx context.Context, in SelectInput) (Result, error) {
	if len(in.Plausible) == 0 {
		return Result{}, ErrNoCandidates
	}
	if in.Coverage == nil {
		return Result{}, errors.New("coverage counter is required")
	}

	localityUsed := in.Reference >= 0
	var distances map[int64]int
	if localityUsed {
		distances = venue.ForwardDistances(in.Venue, in.Reference, e.distanceMode)
	}

	tieBreaks := e.drawTieBreaks(len(in.Plausible))
	candidates := make([]Candidate, 0, len(in.Plausible))
	for i, id := range in.Plausible {
		c := Candidate{SubmissionID: id, TieBreak: tieBreaks[i], Distance: -1}

		if localityUsed {
			if d, ok := distances[id]; ok {
				c.Distance = d
				c.LocalityBonus = e.localityBonus(d)
			}
		}

		count, err := in.Coverage.CompletedRatingCount(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("coverage for submission %d: %w", id, err)
		}
		c.CompletedRatings = count
		if count < e.coverageThreshold {
			c.CoverageBonus = e.coverageBonus
		}

		c.Score = c.TieBreak + c.LocalityBonus + c.CoverageBonus
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	top := candidates
	if len(top) > e.topN {
		top = top[:e.topN]
	}

	return Result{
		Best:         candidates[0],
		Top:          append([]Candidate(nil), top...),
		Considered:   len(candidates),
		LocalityUsed: localityUsed,
	}, nil
}

// localityBonus returns the bonus for a forward distance; distance 0 (the
// judge's own table) and anything past the configured bonuses get none.
func (e *Engine) localityBonus(distance int) float64 {
	if distance < 1 || distance > len(e.localityBonuses) {
		return 0
	}
	return e.localityBonuses[distance-1]
}

func (e *Engine) drawTieBreaks(n int) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]float64, n)
	for i := range out {
		out[i] = e.rng.Float64() * e.tieBreakScale
	}
	return out
}
