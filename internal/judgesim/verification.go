package judgesim

import (
	"context"
	"fmt"

	"github.com/okian/gavel/internal/domain/types"
	"github.com/okian/gavel/pkg/logger"
)

// verify re-reads every judge's history and the coverage table.
func (s *sim) verify(ctx context.Context, stats *Stats) error {
	s.log.Info(ctx, "verifying results")

	var total int
	for i := 1; i <= s.cfg.Judges; i++ {
		judgeID := s.cfg.IDOffset + int64(i)
		list, err := s.client.Assignments(ctx, judgeID)
		if err != nil {
			return fmt.Errorf("judge %d assignments: %w", judgeID, err)
		}
		if err := VerifyJudge(judgeID, list); err != nil {
			return err
		}
		total += len(list)
	}
	if int64(total) != stats.Created {
		return fmt.Errorf("judges hold %d assignments but %d were created", total, stats.Created)
	}

	cov, err := s.client.Coverage(ctx)
	if err != nil {
		return fmt.Errorf("coverage: %w", err)
	}
	minC, maxC, err := VerifyCoverage(cov, s.cfg.IDOffset, s.cfg.Submissions, s.cfg.MinCoverage)
	stats.MinCoverage, stats.MaxCoverage = minC, maxC
	if err != nil {
		return err
	}

	s.log.Info(ctx, "verification passed",
		logger.Int("assignments", total),
		logger.Int("minCoverage", minC),
		logger.Int("maxCoverage", maxC))
	return nil
}

// VerifyJudge checks one judge's history: priorities run 1, 2, 3, ...
// without gaps, no submission appears twice, and nothing is left pending.
func VerifyJudge(judgeID int64, list []types.Assignment) error {
	seen := make(map[int64]int, len(list))
	for i, a := range list {
		if a.Priority != i+1 {
			return fmt.Errorf("judge %d: assignment %d has priority %d, want %d", judgeID, a.AssignmentID, a.Priority, i+1)
		}
		if prev, ok := seen[a.SubmissionID]; ok {
			return fmt.Errorf("judge %d: submission %d assigned at priorities %d and %d", judgeID, a.SubmissionID, prev, a.Priority)
		}
		seen[a.SubmissionID] = a.Priority
		if a.Active {
			return fmt.Errorf("judge %d: assignment %d still pending", judgeID, a.AssignmentID)
		}
	}
	return nil
}

// VerifyCoverage checks the seeded submissions' completed ratings and
// returns their minimum and maximum. minRequired <= 0 only reports.
func VerifyCoverage(rows []types.Coverage, idOffset int64, submissions, minRequired int) (int, int, error) {
	minC, maxC := -1, 0
	found := 0
	for _, r := range rows {
		if r.SubmissionID <= idOffset || r.SubmissionID > idOffset+int64(submissions) {
			continue
		}
		found++
		if minC < 0 || r.CompletedRatings < minC {
			minC = r.CompletedRatings
		}
		if r.CompletedRatings > maxC {
			maxC = r.CompletedRatings
		}
		if minRequired > 0 && r.CompletedRatings < minRequired {
			return minC, maxC, fmt.Errorf("submission %d has %d completed ratings, want at least %d",
				r.SubmissionID, r.CompletedRatings, minRequired)
		}
	}
	if found != submissions {
		return minC, maxC, fmt.Errorf("coverage lists %d of %d seeded submissions", found, submissions)
	}
	if minC < 0 {
		minC = 0
	}
	return minC, maxC, nil
}
