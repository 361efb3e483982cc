package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
)

// timeLayout is a fixed-width UTC format so lexicographic comparison of
// stored timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z"

const jobColumns = `id, type, payload, priority, state, result,
	failure_kind, failure_message, owner, auto_cleanup,
	created_at, started_at, finished_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// EnqueueJob persists a new job in queued state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	j.State = job.StateQueued

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarry_jobs (id, type, payload, priority, state, auto_cleanup, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Type, j.Payload, j.Priority, string(j.State),
		boolToInt(j.AutoCleanup), formatTime(j.CreatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return quarry.ErrJobAlreadyExists
		}
		return fmt.Errorf("quarry/sqlite: enqueue job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the best queued job of the given type.
// SQLite has no FOR UPDATE SKIP LOCKED, so the claim is a single
// UPDATE-with-subquery statement; the connection-level write lock makes
// it atomic across claimants.
func (s *Store) ClaimJob(ctx context.Context, jobType string, workerID id.WorkerID) (*job.Job, error) {
	now := formatTime(time.Now())

	row := s.db.QueryRowContext(ctx, `
		UPDATE quarry_jobs
		SET state = 'active', owner = ?, started_at = ?
		WHERE id = (
			SELECT id FROM quarry_jobs
			WHERE state = 'queued' AND type = ?
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID.String(), now, jobType,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("quarry/sqlite: claim job: %w", err)
	}
	return j, nil
}

// CompleteJob records a result if workerID still owns the job.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, result []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quarry_jobs
		SET state = 'completed', result = ?, owner = NULL, finished_at = ?
		WHERE id = ? AND state = 'active' AND owner = ?`,
		result, formatTime(time.Now()), jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: complete job: %w", err)
	}
	return s.finalizeOutcome(ctx, res, jobID)
}

// FailJob records a failure if workerID still owns the job.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, failure *job.Failure) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quarry_jobs
		SET state = 'failed', failure_kind = ?, failure_message = ?, owner = NULL, finished_at = ?
		WHERE id = ? AND state = 'active' AND owner = ?`,
		failure.Kind, failure.Message, formatTime(time.Now()), jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: fail job: %w", err)
	}
	return s.finalizeOutcome(ctx, res, jobID)
}

// finalizeOutcome maps a zero-row finalize to the right error: the job is
// either gone or no longer owned by the caller.
func (s *Store) finalizeOutcome(ctx context.Context, res sql.Result, jobID id.JobID) error {
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	if rows > 0 {
		return nil
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quarry_jobs WHERE id = ?`, jobID.String(),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: finalize check: %w", err)
	}
	if count == 0 {
		return quarry.ErrJobNotFound
	}
	return quarry.ErrOwnershipMismatch
}

// SweepExpired reclaims active jobs claimed before the cutoff, marking
// them timed out. The expired rows are read before the update so the
// returned jobs keep the owner whose claim is being released.
func (s *Store) SweepExpired(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	now := time.Now()
	cutoff := formatTime(now.Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("quarry/sqlite: sweep begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM quarry_jobs
		WHERE state = 'active' AND started_at < ?`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("quarry/sqlite: sweep select: %w", err)
	}

	var reclaimed []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			rows.Close() //nolint:errcheck // read-only rows
			return nil, fmt.Errorf("quarry/sqlite: sweep scan: %w", scanErr)
		}
		reclaimed = append(reclaimed, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // read-only rows
		return nil, fmt.Errorf("quarry/sqlite: sweep rows: %w", err)
	}
	rows.Close() //nolint:errcheck // read-only rows

	if len(reclaimed) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE quarry_jobs
			SET state = 'timed_out', owner = NULL, finished_at = ?
			WHERE state = 'active' AND started_at < ?`,
			formatTime(now), cutoff,
		); err != nil {
			return nil, fmt.Errorf("quarry/sqlite: sweep update: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("quarry/sqlite: sweep commit: %w", err)
	}

	finished := now.UTC().Truncate(time.Millisecond)
	for _, j := range reclaimed {
		j.State = job.StateTimedOut
		j.FinishedAt = &finished
	}
	return reclaimed, nil
}

// AwaitJob polls until the job reaches a terminal state or timeout
// elapses. SQLite has no notification primitive, so this is the one
// backend where awaiting costs periodic reads.
func (s *Store) AwaitJob(ctx context.Context, jobID id.JobID, timeout time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		j, err := s.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if j.State.Terminal() {
			return j, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM quarry_jobs WHERE id = ?`, jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, quarry.ErrJobNotFound
		}
		return nil, fmt.Errorf("quarry/sqlite: get job: %w", err)
	}
	return j, nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quarry_jobs WHERE id = ?`, jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	if rows == 0 {
		return quarry.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM quarry_jobs WHERE state = ?`
	args := []any{string(state)}

	if opts.Type != "" {
		query += ` AND type = ?`
		args = append(args, opts.Type)
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quarry/sqlite: list jobs by state: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var jobs []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("quarry/sqlite: list scan: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM quarry_jobs WHERE 1=1`
	args := []any{}

	if opts.Type != "" {
		query += ` AND type = ?`
		args = append(args, opts.Type)
	}
	if opts.State != "" {
		query += ` AND state = ?`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("quarry/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// PurgeTerminalJobs deletes auto-cleanup jobs that finished more than
// olderThan ago.
func (s *Store) PurgeTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM quarry_jobs
		WHERE state IN ('completed', 'failed', 'timed_out')
		  AND auto_cleanup = 1
		  AND finished_at IS NOT NULL
		  AND finished_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("quarry/sqlite: purge terminal jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	return rows, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		jID, jobType, state        string
		payload, result            []byte
		priority, autoCleanup      int
		failKind, failMsg, owner   sql.NullString
		createdAt                  string
		startedAt, finishedAt      sql.NullString
	)

	err := row.Scan(&jID, &jobType, &payload, &priority, &state, &result,
		&failKind, &failMsg, &owner, &autoCleanup,
		&createdAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(jID)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}

	j := &job.Job{
		ID:          parsedID,
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		State:       job.State(state),
		Result:      result,
		AutoCleanup: autoCleanup == 1,
	}

	j.CreatedAt, _ = time.Parse(timeLayout, createdAt) //nolint:errcheck // best-effort parse from trusted data
	if failMsg.Valid {
		j.Failure = &job.Failure{Kind: failKind.String, Message: failMsg.String}
	}
	if owner.Valid && owner.String != "" {
		j.Owner, _ = id.ParseWorkerID(owner.String) //nolint:errcheck // best-effort parse from trusted data
	}
	if startedAt.Valid {
		t, _ := time.Parse(timeLayout, startedAt.String) //nolint:errcheck // best-effort parse from trusted data
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(timeLayout, finishedAt.String) //nolint:errcheck // best-effort parse from trusted data
		j.FinishedAt = &t
	}
	return j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
