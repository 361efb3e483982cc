package sqlite

import (
	"context"
	"fmt"
)

// migrations are applied in order; each runs at most once, tracked by the
// quarry_migrations table.
var migrations = []struct {
	name string
	stmt string
}{
	{
		name: "create_jobs_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS quarry_jobs (
				id              TEXT PRIMARY KEY,
				type            TEXT NOT NULL,
				payload         BLOB NOT NULL,
				priority        INTEGER NOT NULL DEFAULT 0,
				state           TEXT NOT NULL DEFAULT 'queued',
				result          BLOB,
				failure_kind    TEXT,
				failure_message TEXT,
				owner           TEXT,
				auto_cleanup    INTEGER NOT NULL DEFAULT 0,
				created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				started_at      TEXT,
				finished_at     TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_quarry_jobs_claim
				ON quarry_jobs (type, priority DESC, created_at ASC)
				WHERE state = 'queued';
			CREATE INDEX IF NOT EXISTS idx_quarry_jobs_state
				ON quarry_jobs (state);
			CREATE INDEX IF NOT EXISTS idx_quarry_jobs_active
				ON quarry_jobs (started_at)
				WHERE state = 'active';`,
	},
	{
		name: "create_workers_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS quarry_workers (
				id              TEXT PRIMARY KEY,
				hostname        TEXT NOT NULL,
				types           TEXT NOT NULL DEFAULT '[]',
				concurrency     INTEGER NOT NULL DEFAULT 1,
				policy          TEXT NOT NULL DEFAULT '',
				state           TEXT NOT NULL DEFAULT 'active',
				is_leader       INTEGER NOT NULL DEFAULT 0,
				leader_until    TEXT,
				last_seen       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			);
			CREATE INDEX IF NOT EXISTS idx_quarry_workers_stale
				ON quarry_workers (last_seen)
				WHERE state = 'active';`,
	},
	{
		name: "create_leader_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS quarry_leader (
				slot         INTEGER PRIMARY KEY CHECK (slot = 1),
				worker_id    TEXT NOT NULL,
				leader_until TEXT NOT NULL
			);`,
	},
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quarry_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`)
	if err != nil {
		return fmt.Errorf("quarry/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM quarry_migrations WHERE name = ?`, m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("quarry/sqlite: check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}

		if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("quarry/sqlite: apply migration %s: %w", m.name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO quarry_migrations (name) VALUES (?)`, m.name,
		); err != nil {
			return fmt.Errorf("quarry/sqlite: record migration %s: %w", m.name, err)
		}

		s.logger.Debug("migration applied", "name", m.name)
	}
	return nil
}
