package assignment

import (
	"context"
	"fmt"

	"github.com/okian/gavel/internal/domain/model"
)

// LastLocation resolves where the judge is standing: the location of the
// submission behind their highest-priority completed rating, else their
// anchor, else model.UnknownLocation.
func LastLocation(ctx context.Context, r Reader, judgeID int64) (int, error) {
	history, err := r.RatingHistory(ctx, judgeID)
	if err != nil {
		return model.UnknownLocation, persistence("rating history", err)
	}
	if err := validateHistory(judgeID, history); err != nil {
		return model.UnknownLocation, err
	}

	var (
		found bool
		best  model.RatingHistoryEntry
	)
	for _, h := range history {
		if h.Active {
			continue
		}
		if !found || h.Priority > best.Priority {
			best, found = h, true
		}
	}
	if found {
		return best.Location, nil
	}

	judge, ok, err := r.Judge(ctx, judgeID)
	if err != nil {
		return model.UnknownLocation, persistence("judge", err)
	}
	if !ok {
		return model.UnknownLocation, fmt.Errorf("%w: %d", ErrUnknownJudge, judgeID)
	}
	return judge.AnchorOrUnknown(), nil
}

func validateHistory(judgeID int64, history []model.RatingHistoryEntry) error {
	priorities := make(map[int]int64, len(history))
	for _, h := range history {
		if !h.SubmissionKnown {
			return fmt.Errorf("%w: judge %d assignment %d references missing submission %d",
				ErrInconsistentReference, judgeID, h.AssignmentID, h.SubmissionID)
		}
		if h.Priority < 1 {
			return fmt.Errorf("%w: judge %d assignment %d has priority %d",
				ErrInconsistentReference, judgeID, h.AssignmentID, h.Priority)
		}
		if other, dup := priorities[h.Priority]; dup {
			return fmt.Errorf("%w: judge %d assignments %d and %d share priority %d",
				ErrInconsistentReference, judgeID, other, h.AssignmentID, h.Priority)
		}
		priorities[h.Priority] = h.AssignmentID
	}
	return nil
}
