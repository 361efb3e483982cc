package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/id"
)

const workerColumns = `id, hostname, types, concurrency, policy, state,
	is_leader, leader_until, last_seen, created_at`

// RegisterWorker adds a worker to the fleet registry. Re-registering the
// same ID replaces the record.
func (s *Store) RegisterWorker(ctx context.Context, w *fleet.Worker) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.LastSeen.IsZero() {
		w.LastSeen = now
	}

	types, err := json.Marshal(w.Types)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: marshal worker types: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO quarry_workers
			(id, hostname, types, concurrency, policy, state, is_leader, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.Hostname, string(types), w.Concurrency, w.Policy,
		string(w.State), boolToInt(w.IsLeader),
		formatTime(w.LastSeen), formatTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the fleet registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quarry_workers WHERE id = ?`, workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: deregister worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	if rows == 0 {
		return quarry.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quarry_workers SET last_seen = ? WHERE id = ?`,
		formatTime(time.Now()), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: heartbeat worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	if rows == 0 {
		return quarry.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*fleet.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM quarry_workers ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("quarry/sqlite: list workers: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var workers []*fleet.Worker
	for rows.Next() {
		w, scanErr := scanWorker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("quarry/sqlite: list workers scan: %w", scanErr)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// AcquireLeadership attempts to become the sweep leader. Leadership lives
// in a single-row table; the transaction serializes competing claimants.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	wID := workerID.String()
	now := time.Now().UTC()
	until := formatTime(now.Add(ttl))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("quarry/sqlite: acquire leadership begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current, currentUntil string
	err = tx.QueryRowContext(ctx,
		`SELECT worker_id, leader_until FROM quarry_leader WHERE slot = 1`,
	).Scan(&current, &currentUntil)

	switch {
	case isNoRows(err):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quarry_leader (slot, worker_id, leader_until) VALUES (1, ?, ?)`,
			wID, until,
		); err != nil {
			return false, fmt.Errorf("quarry/sqlite: acquire leadership insert: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("quarry/sqlite: acquire leadership select: %w", err)
	case current != wID && currentUntil > formatTime(now):
		return false, nil // held by a live leader
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE quarry_leader SET worker_id = ?, leader_until = ? WHERE slot = 1`,
			wID, until,
		); err != nil {
			return false, fmt.Errorf("quarry/sqlite: acquire leadership update: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE quarry_workers SET is_leader = 1, leader_until = ? WHERE id = ?`,
		until, wID,
	); err != nil {
		return false, fmt.Errorf("quarry/sqlite: acquire leadership worker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("quarry/sqlite: acquire leadership commit: %w", err)
	}
	return true, nil
}

// RenewLeadership extends the leader's hold.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := formatTime(now.Add(ttl))

	res, err := s.db.ExecContext(ctx, `
		UPDATE quarry_leader
		SET leader_until = ?
		WHERE slot = 1 AND worker_id = ? AND leader_until > ?`,
		until, workerID.String(), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("quarry/sqlite: renew leadership: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // sqlite3 driver always returns nil
	if rows == 0 {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE quarry_workers SET leader_until = ? WHERE id = ?`,
		until, workerID.String(),
	); err != nil {
		s.logger.Warn("failed to update leader fields", "error", err)
	}
	return true, nil
}

// GetLeader returns the current sweep leader, or nil if there is none.
func (s *Store) GetLeader(ctx context.Context) (*fleet.Worker, error) {
	var wID string
	err := s.db.QueryRowContext(ctx,
		`SELECT worker_id FROM quarry_leader WHERE slot = 1 AND leader_until > ?`,
		formatTime(time.Now()),
	).Scan(&wID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("quarry/sqlite: get leader: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM quarry_workers WHERE id = ?`, wID,
	)
	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil // leader row exists but worker gone
		}
		return nil, fmt.Errorf("quarry/sqlite: get leader worker: %w", err)
	}
	return w, nil
}

func scanWorker(row rowScanner) (*fleet.Worker, error) {
	var (
		wID, hostname, types, policy, state string
		concurrency, isLeader               int
		leaderUntil                         sql.NullString
		lastSeen, createdAt                 string
	)

	err := row.Scan(&wID, &hostname, &types, &concurrency, &policy, &state,
		&isLeader, &leaderUntil, &lastSeen, &createdAt)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseWorkerID(wID)
	if err != nil {
		return nil, fmt.Errorf("parse worker id: %w", err)
	}

	w := &fleet.Worker{
		ID:          parsedID,
		Hostname:    hostname,
		Concurrency: concurrency,
		Policy:      policy,
		State:       fleet.WorkerState(state),
		IsLeader:    isLeader == 1,
	}

	_ = json.Unmarshal([]byte(types), &w.Types)      //nolint:errcheck // best-effort parse from trusted data
	w.LastSeen, _ = time.Parse(timeLayout, lastSeen) //nolint:errcheck // best-effort parse from trusted data
	w.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if leaderUntil.Valid {
		t, _ := time.Parse(timeLayout, leaderUntil.String) //nolint:errcheck // best-effort parse from trusted data
		w.LeaderUntil = &t
	}
	return w, nil
}
