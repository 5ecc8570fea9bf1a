package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	repository "github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const detailSelect = `SELECT a.id, a.judge_id, a.priority, a.type, a.active,
       ra.id, ra.submission_id, ra.rating, ra.no_show
FROM assignments a
JOIN rating_assignments ra ON ra.assignment_id = a.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetail(row rowScanner) (model.AssignmentDetail, error) {
	var (
		d      model.AssignmentDetail
		typ    int
		rating sql.NullInt64
	)
	if err := row.Scan(
		&d.ID, &d.JudgeID, &d.Priority, &typ, &d.Active,
		&d.Rating.ID, &d.Rating.SubmissionID, &rating, &d.Rating.NoShow,
	); err != nil {
		return model.AssignmentDetail{}, err
	}
	d.Type = model.AssignmentType(typ)
	d.Rating.AssignmentID = d.ID
	if rating.Valid {
		r := int(rating.Int64)
		d.Rating.Rating = &r
	}
	return d, nil
}

func getDetail(ctx context.Context, q queryer, assignmentID int64) (model.AssignmentDetail, error) {
	d, err := scanDetail(q.QueryRowContext(ctx, detailSelect+` WHERE a.id = ?`, assignmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AssignmentDetail{}, fmt.Errorf("%w: assignment %d", repository.ErrNotFound, assignmentID)
	}
	if err != nil {
		return model.AssignmentDetail{}, mapError("get assignment", err)
	}
	return d, nil
}

func querySubmissions(ctx context.Context, q queryer, where string) ([]model.Submission, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, track_id, location, active FROM submissions`+where+` ORDER BY id`)
	if err != nil {
		return nil, mapError("submissions", err)
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.Name, &s.TrackID, &s.Location, &s.Active); err != nil {
			return nil, mapError("scan submission", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("submissions", err)
	}
	return out, nil
}

// tx implements assignment.Tx over a *sql.Tx.
type tx struct {
	q *sql.Tx
}

func (t *tx) ActiveSubmissions(ctx context.Context) ([]model.Submission, error) {
	return querySubmissions(ctx, t.q, ` WHERE active = 1`)
}

func (t *tx) Submissions(ctx context.Context) ([]model.Submission, error) {
	return querySubmissions(ctx, t.q, "")
}

func (t *tx) Judge(ctx context.Context, judgeID int64) (model.Judge, bool, error) {
	var (
		j      model.Judge
		anchor sql.NullInt64
	)
	err := t.q.QueryRowContext(ctx,
		`SELECT id, name, anchor FROM judges WHERE id = ?`, judgeID,
	).Scan(&j.ID, &j.Name, &anchor)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Judge{}, false, nil
	}
	if err != nil {
		return model.Judge{}, false, mapError("judge", err)
	}
	if anchor.Valid {
		a := int(anchor.Int64)
		j.Anchor = &a
	}
	return j, true, nil
}

func (t *tx) RatingHistory(ctx context.Context, judgeID int64) ([]model.RatingHistoryEntry, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT a.id, ra.submission_id, a.priority, a.active, s.location
		 FROM rating_assignments ra
		 JOIN assignments a ON a.id = ra.assignment_id
		 LEFT JOIN submissions s ON s.id = ra.submission_id
		 WHERE a.judge_id = ? AND a.type = ?
		 ORDER BY a.priority`,
		judgeID, int(model.AssignmentTypeRating),
	)
	if err != nil {
		return nil, mapError("rating history", err)
	}
	defer rows.Close()

	var out []model.RatingHistoryEntry
	for rows.Next() {
		var (
			e   model.RatingHistoryEntry
			loc sql.NullInt64
		)
		if err := rows.Scan(&e.AssignmentID, &e.SubmissionID, &e.Priority, &e.Active, &loc); err != nil {
			return nil, mapError("scan rating history", err)
		}
		e.Location = model.UnknownLocation
		if loc.Valid {
			e.Location = int(loc.Int64)
			e.SubmissionKnown = true
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("rating history", err)
	}
	return out, nil
}

func (t *tx) CompletedRatingCount(ctx context.Context, submissionID int64) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM rating_assignments ra
		 JOIN assignments a ON a.id = ra.assignment_id
		 WHERE ra.submission_id = ? AND a.active = 0`,
		submissionID,
	).Scan(&n)
	if err != nil {
		return 0, mapError("completed rating count", err)
	}
	return n, nil
}

func (t *tx) MaxPriority(ctx context.Context, judgeID int64) (int, error) {
	var p int
	err := t.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(priority), 0) FROM assignments WHERE judge_id = ?`, judgeID,
	).Scan(&p)
	if err != nil {
		return 0, mapError("max priority", err)
	}
	return p, nil
}

func (t *tx) PendingAssignment(ctx context.Context, judgeID int64) (model.AssignmentDetail, bool, error) {
	d, err := scanDetail(t.q.QueryRowContext(ctx,
		detailSelect+` WHERE a.judge_id = ? AND a.active = 1 AND a.type = ? ORDER BY a.priority LIMIT 1`,
		judgeID, int(model.AssignmentTypeRating),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AssignmentDetail{}, false, nil
	}
	if err != nil {
		return model.AssignmentDetail{}, false, mapError("pending assignment", err)
	}
	return d, true, nil
}

func (t *tx) InsertRatingAssignment(ctx context.Context, in model.NewRatingAssignment) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO assignments (judge_id, priority, type, active) VALUES (?, ?, ?, 1)`,
		in.JudgeID, in.Priority, int(model.AssignmentTypeRating),
	)
	if err != nil {
		return 0, mapError("insert assignment", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapError("assignment id", err)
	}

	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO rating_assignments (assignment_id, judge_id, submission_id) VALUES (?, ?, ?)`,
		id, in.JudgeID, in.SubmissionID,
	); err != nil {
		return 0, mapError("insert rating assignment", err)
	}
	return id, nil
}

var _ assignment.Tx = (*tx)(nil)
