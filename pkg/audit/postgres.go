package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRecorder persists audit entries to the audit_entries table.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a recorder backed by db. The audit_entries
// table is created by the store migrations.
func NewPostgresRecorder(db *sql.DB) (*PostgresRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresRecorder{db: db}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, entry *Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries
			(actor_id, actor_role, action, target, client_id, event_id, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ActorID,
		nullStr(entry.ActorRole),
		string(entry.Action),
		nullStr(entry.Target),
		nullStr(entry.ClientID),
		nullStr(entry.EventID),
		string(entry.Outcome),
		nullStr(entry.Detail),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged audit entries: %w", err)
	}
	return n, nil
}

// Recent returns up to limit entries ordered newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, actor_id, COALESCE(actor_role, ''), action,
		       COALESCE(target, ''), COALESCE(client_id, ''),
		       COALESCE(event_id, ''), outcome, COALESCE(detail, ''), created_at
		FROM audit_entries
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var action, outcome string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &action,
			&e.Target, &e.ClientID, &e.EventID, &outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Outcome = Outcome(outcome)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
