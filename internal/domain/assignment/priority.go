package assignment

import (
	"context"
)

// NextPriority returns one more than the judge's highest priority, or 1.
func NextPriority(ctx context.Context, r Reader, judgeID int64) (int, error) {
	highest, err := r.MaxPriority(ctx, judgeID)
	if err != nil {
		return 0, persistence("max priority", err)
	}
	if highest < 1 {
		return 1, nil
	}
	return highest + 1, nil
}
