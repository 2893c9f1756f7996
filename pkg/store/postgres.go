package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/stagepass/stagepass/pkg/authz"
)

// PostgresStore implements PermissionStore and ParticipantStore over
// database/sql with the lib/pq driver.
//
// ClientIDs and EventIDs are stored as JSONB so the nil-vs-empty
// distinction survives the round trip: SQL NULL maps to a nil pointer,
// '[]' maps to an empty list.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a Postgres-backed store on an existing connection
// pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// Ping reports store connectivity, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const recordColumns = `user_id, email, role, client_ids, event_ids, created_at, updated_at, created_by, updated_by`

// GetByUserID fetches the permission record stored at the canonical
// principal ID.
func (s *PostgresStore) GetByUserID(ctx context.Context, userID string) (*authz.PermissionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM permission_records WHERE user_id = $1`
	return s.scanRecord(s.db.QueryRowContext(ctx, query, userID))
}

// GetByEmail fetches a permission record by the email captured at grant
// time. Only the resolver's migration fallback uses this; when several
// records somehow share an email the most recently updated one wins.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*authz.PermissionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM permission_records
		WHERE lower(email) = lower($1)
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return s.scanRecord(s.db.QueryRowContext(ctx, query, email))
}

// Upsert writes a record at its UserID key, last write wins.
func (s *PostgresStore) Upsert(ctx context.Context, record *authz.PermissionRecord) error {
	clientIDs, err := marshalIDs(record.ClientIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal client ids: %w", err)
	}
	eventIDs, err := marshalIDs(record.EventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal event ids: %w", err)
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO permission_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			client_ids = EXCLUDED.client_ids,
			event_ids = EXCLUDED.event_ids,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`
	_, err = s.db.ExecContext(ctx, query,
		record.UserID,
		record.Email,
		string(record.Role),
		clientIDs,
		eventIDs,
		record.CreatedAt,
		record.UpdatedAt,
		nullIfEmpty(record.CreatedBy),
		nullIfEmpty(record.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert permission record: %w", err)
	}
	return nil
}

// DeleteByUserID removes the record at userID.
func (s *PostgresStore) DeleteByUserID(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM permission_records WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete permission record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// List returns permission records, optionally filtered to those whose
// client scope intersects clientIDs.
func (s *PostgresStore) List(ctx context.Context, clientIDs *[]string) ([]*authz.PermissionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM permission_records ORDER BY created_at ASC`
	args := []interface{}{}
	if clientIDs != nil {
		// JSONB containment per requested client; scoped callers never see
		// records granted outside their own clients.
		conds := make([]string, 0, len(*clientIDs))
		for i, id := range *clientIDs {
			conds = append(conds, fmt.Sprintf("client_ids @> $%d", i+1))
			args = append(args, fmt.Sprintf(`["%s"]`, id))
		}
		if len(conds) == 0 {
			return nil, nil
		}
		query = `SELECT ` + recordColumns + ` FROM permission_records WHERE ` +
			strings.Join(conds, " OR ") + ` ORDER BY created_at ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission records: %w", err)
	}
	defer rows.Close()

	var records []*authz.PermissionRecord
	for rows.Next() {
		record, err := s.scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanRecord(row *sql.Row) (*authz.PermissionRecord, error) {
	record, err := s.scanRecordRow(row)
	if err == sql.ErrNoRows {
		return nil, authz.ErrNotFound
	}
	return record, err
}

func (s *PostgresStore) scanRecordRow(scanner rowScanner) (*authz.PermissionRecord, error) {
	var record authz.PermissionRecord
	var role string
	var clientIDs, eventIDs sql.NullString
	var createdBy, updatedBy sql.NullString

	err := scanner.Scan(
		&record.UserID,
		&record.Email,
		&role,
		&clientIDs,
		&eventIDs,
		&record.CreatedAt,
		&record.UpdatedAt,
		&createdBy,
		&updatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan permission record: %w", err)
	}

	record.Role = authz.Role(role)
	if record.ClientIDs, err = unmarshalIDs(clientIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client ids: %w", err)
	}
	if record.EventIDs, err = unmarshalIDs(eventIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event ids: %w", err)
	}
	if createdBy.Valid {
		record.CreatedBy = createdBy.String
	}
	if updatedBy.Valid {
		record.UpdatedBy = updatedBy.String
	}
	return &record, nil
}

// SetActive upserts the participant row with the given active state.
func (s *PostgresStore) SetActive(ctx context.Context, clientID, eventID, email string, active bool) error {
	query := `
		INSERT INTO event_participants (client_id, event_id, email, active, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (client_id, event_id, email) DO UPDATE SET
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, clientID, eventID, strings.ToLower(email), active); err != nil {
		return fmt.Errorf("failed to update participant state: %w", err)
	}
	return nil
}

// AddAllowlistEntry re-admits an email to the event's access allow-list.
func (s *PostgresStore) AddAllowlistEntry(ctx context.Context, clientID, eventID, email string) error {
	query := `
		INSERT INTO event_allowlist (client_id, event_id, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, event_id, email) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, clientID, eventID, strings.ToLower(email)); err != nil {
		return fmt.Errorf("failed to add allowlist entry: %w", err)
	}
	return nil
}

// RemoveAllowlistEntry drops an email from the event's access allow-list.
func (s *PostgresStore) RemoveAllowlistEntry(ctx context.Context, clientID, eventID, email string) error {
	query := `DELETE FROM event_allowlist WHERE client_id = $1 AND event_id = $2 AND email = $3`
	if _, err := s.db.ExecContext(ctx, query, clientID, eventID, strings.ToLower(email)); err != nil {
		return fmt.Errorf("failed to remove allowlist entry: %w", err)
	}
	return nil
}

// IsAllowlisted reports whether email may access the event.
func (s *PostgresStore) IsAllowlisted(ctx context.Context, clientID, eventID, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM event_allowlist WHERE client_id = $1 AND event_id = $2 AND email = $3)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, clientID, eventID, strings.ToLower(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check allowlist: %w", err)
	}
	return exists, nil
}

func marshalIDs(ids *[]string) (sql.NullString, error) {
	if ids == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(*ids)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalIDs(raw sql.NullString) (*[]string, error) {
	if !raw.Valid {
		return nil, nil
	}
	ids := []string{}
	if err := json.Unmarshal([]byte(raw.String), &ids); err != nil {
		return nil, err
	}
	return &ids, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
