package store

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all store migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permission_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_records (
					user_id VARCHAR(128) PRIMARY KEY,
					email VARCHAR(320) NOT NULL,
					role VARCHAR(32) NOT NULL,
					client_ids JSONB,
					event_ids JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(128),
					updated_by VARCHAR(128)
				);

				CREATE INDEX IF NOT EXISTS idx_permission_records_email
					ON permission_records(lower(email));
				CREATE INDEX IF NOT EXISTS idx_permission_records_role
					ON permission_records(role);
			`,
		},
		{
			Version:     2,
			Description: "Create event_participants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS event_participants (
					client_id VARCHAR(128) NOT NULL,
					event_id VARCHAR(128) NOT NULL,
					email VARCHAR(320) NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (client_id, event_id, email)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create event_allowlist table",
			SQL: `
				CREATE TABLE IF NOT EXISTS event_allowlist (
					client_id VARCHAR(128) NOT NULL,
					event_id VARCHAR(128) NOT NULL,
					email VARCHAR(320) NOT NULL,
					PRIMARY KEY (client_id, event_id, email)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create audit_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_entries (
					id BIGSERIAL PRIMARY KEY,
					actor_id VARCHAR(128) NOT NULL,
					actor_role VARCHAR(32),
					action VARCHAR(64) NOT NULL,
					target VARCHAR(320),
					client_id VARCHAR(128),
					event_id VARCHAR(128),
					outcome VARCHAR(16) NOT NULL,
					detail TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_entries_actor
					ON audit_entries(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at
					ON audit_entries(created_at);
			`,
		},
	}
}

// RunMigrations applies all migrations in order. Each statement is
// idempotent, so re-running on an up-to-date database is a no-op.
func RunMigrations(db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
