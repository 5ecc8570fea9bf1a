package assignment

import (
	"context"
)

// CoverageTracker answers completed-rating counts for one decision. Counts
// are memoised since they cannot change inside a transaction.
type CoverageTracker struct {
	reader Reader
	counts map[int64]int
}

// NewCoverageTracker creates a tracker reading through r.
func NewCoverageTracker(r Reader) *CoverageTracker {
	return &CoverageTracker{reader: r, counts: make(map[int64]int)}
}

// CompletedRatingCount returns how many completed ratings a submission has.
func (c *CoverageTracker) CompletedRatingCount(ctx context.Context, submissionID int64) (int, error) {
	if n, ok := c.counts[submissionID]; ok {
		return n, nil
	}
	n, err := c.reader.CompletedRatingCount(ctx, submissionID)
	if err != nil {
		return 0, persistence("completed rating count", err)
	}
	c.counts[submissionID] = n
	return n, nil
}
