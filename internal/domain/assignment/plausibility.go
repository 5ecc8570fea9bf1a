package assignment

import (
	"context"
	"sort"
)

// PlausibleSubmissions returns the active submissions the judge has never
// been assigned, in ascending ID order. An empty result is not an error.
func PlausibleSubmissions(ctx context.Context, r Reader, judgeID int64) ([]int64, error) {
	active, err := r.ActiveSubmissions(ctx)
	if err != nil {
		return nil, persistence("active submissions", err)
	}
	history, err := r.RatingHistory(ctx, judgeID)
	if err != nil {
		return nil, persistence("rating history", err)
	}

	seen := make(map[int64]struct{}, len(history))
	for _, h := range history {
		seen[h.SubmissionID] = struct{}{}
	}

	out := make([]int64, 0, len(active))
	for _, s := range active {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		out = append(out, s.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
