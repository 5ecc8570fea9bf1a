// Package sqlite provides a SQLite-backed assignment store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	repository "github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Default store configuration constants.
const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 8
)

// Option applies a configuration option to Open.
type Option func(*options)

type options struct {
	busyTimeout  time.Duration
	maxOpenConns int
}

// WithBusyTimeout sets how long a writer waits for the database lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// Store persists assignment state in SQLite. Transactions are opened with
// BEGIN IMMEDIATE so writers are serialized by the database lock.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	o := options{busyTimeout: defaultBusyTimeout, maxOpenConns: defaultMaxOpenConns}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(path), o.busyTimeout.Milliseconds(),
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(o.maxOpenConns)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InTx implements assignment.Transactor.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx assignment.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError("commit", err)
	}
	committed = true
	return nil
}

// PutSubmission implements repository.Store.PutSubmission.
func (s *Store) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repository.ValidateSubmission(sub); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO submissions (id, name, track_id, location, active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   track_id = excluded.track_id,
		   location = excluded.location,
		   active = excluded.active`,
		sub.ID, sub.Name, sub.TrackID, sub.Location, sub.Active,
	)
	if err != nil {
		return mapError("put submission", err)
	}
	return nil
}

// PutJudge implements repository.Store.PutJudge.
func (s *Store) PutJudge(ctx context.Context, j model.Judge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repository.ValidateJudge(j); err != nil {
		return err
	}

	var anchor sql.NullInt64
	if j.Anchor != nil {
		anchor = sql.NullInt64{Int64: int64(*j.Anchor), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO judges (id, name, anchor)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   anchor = excluded.anchor`,
		j.ID, j.Name, anchor,
	)
	if err != nil {
		return mapError("put judge", err)
	}
	return nil
}

// CompleteRating implements repository.Store.CompleteRating.
func (s *Store) CompleteRating(ctx context.Context, assignmentID int64, outcome model.RatingOutcome) (model.AssignmentDetail, error) {
	if err := outcome.Validate(); err != nil {
		return model.AssignmentDetail{}, fmt.Errorf("%w: %w", repository.ErrInvalidInput, err)
	}

	var out model.AssignmentDetail
	err := s.InTx(ctx, func(ctx context.Context, t assignment.Tx) error {
		q := t.(*tx).q

		d, err := getDetail(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		if !d.Active {
			return fmt.Errorf("%w: assignment %d", repository.ErrAlreadyCompleted, assignmentID)
		}

		var rating sql.NullInt64
		if outcome.Rating != nil {
			rating = sql.NullInt64{Int64: int64(*outcome.Rating), Valid: true}
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE rating_assignments SET rating = ?, no_show = ? WHERE assignment_id = ?`,
			rating, outcome.NoShow, assignmentID,
		); err != nil {
			return mapError("update rating", err)
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE assignments SET active = 0 WHERE id = ?`, assignmentID,
		); err != nil {
			return mapError("complete assignment", err)
		}

		d.Active = false
		if outcome.Rating != nil {
			r := *outcome.Rating
			d.Rating.Rating = &r
		}
		d.Rating.NoShow = outcome.NoShow
		out = d
		return nil
	})
	if err != nil {
		return model.AssignmentDetail{}, err
	}
	return out, nil
}

// Assignment implements repository.Store.Assignment.
func (s *Store) Assignment(ctx context.Context, assignmentID int64) (model.AssignmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentDetail{}, err
	}
	return getDetail(ctx, s.sqlDB, assignmentID)
}

// JudgeAssignments implements repository.Store.JudgeAssignments.
func (s *Store) JudgeAssignments(ctx context.Context, judgeID int64) ([]model.AssignmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM judges WHERE id = ?`, judgeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: judge %d", repository.ErrNotFound, judgeID)
	}
	if err != nil {
		return nil, mapError("judge exists", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, detailSelect+` WHERE a.judge_id = ? ORDER BY a.priority`, judgeID)
	if err != nil {
		return nil, mapError("judge assignments", err)
	}
	defer rows.Close()

	var out []model.AssignmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, mapError("scan assignment", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("judge assignments", err)
	}
	return out, nil
}

// Coverage implements repository.Store.Coverage.
func (s *Store) Coverage(ctx context.Context) ([]model.SubmissionCoverage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT s.id, s.name, s.track_id, s.location, s.active,
		        COALESCE(SUM(CASE WHEN a.active = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN a.active = 1 THEN 1 ELSE 0 END), 0)
		 FROM submissions s
		 LEFT JOIN rating_assignments ra ON ra.submission_id = s.id
		 LEFT JOIN assignments a ON a.id = ra.assignment_id
		 GROUP BY s.id
		 ORDER BY s.id`)
	if err != nil {
		return nil, mapError("coverage", err)
	}
	defer rows.Close()

	var out []model.SubmissionCoverage
	for rows.Next() {
		var c model.SubmissionCoverage
		if err := rows.Scan(
			&c.Submission.ID, &c.Submission.Name, &c.Submission.TrackID,
			&c.Submission.Location, &c.Submission.Active,
			&c.CompletedRatings, &c.PendingRatings,
		); err != nil {
			return nil, mapError("scan coverage", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("coverage", err)
	}
	return out, nil
}

// Stats implements repository.Store.Stats.
func (s *Store) Stats(ctx context.Context) (repository.Stats, error) {
	if err := ctx.Err(); err != nil {
		return repository.Stats{}, err
	}

	var st repository.Stats
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM submissions),
		   (SELECT COUNT(*) FROM submissions WHERE active = 1),
		   (SELECT COUNT(*) FROM judges),
		   (SELECT COUNT(*) FROM assignments),
		   (SELECT COUNT(*) FROM assignments WHERE active = 1)`,
	).Scan(&st.Submissions, &st.ActiveSubmissions, &st.Judges, &st.Assignments, &st.PendingAssignments)
	if err != nil {
		return repository.Stats{}, mapError("stats", err)
	}
	return st, nil
}

// mapError translates SQLite constraint failures into repository kinds.
func mapError(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrConflict, err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrNotFound, err)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ repository.Store = (*Store)(nil)
