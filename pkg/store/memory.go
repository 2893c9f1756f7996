package store

import (
	"context"
	"strings"
	"sync"

	"github.com/stagepass/stagepass/pkg/authz"
)

// MemoryStore is an in-memory PermissionStore and ParticipantStore used by
// tests and local development. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*authz.PermissionRecord
	active    map[string]bool
	allowlist map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*authz.PermissionRecord),
		active:    make(map[string]bool),
		allowlist: make(map[string]struct{}),
	}
}

func (s *MemoryStore) GetByUserID(ctx context.Context, userID string) (*authz.PermissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := cloneRecord(record)
	return cp, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*authz.PermissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *authz.PermissionRecord
	for _, record := range s.records {
		if !strings.EqualFold(record.Email, email) {
			continue
		}
		if latest == nil || record.UpdatedAt.After(latest.UpdatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, authz.ErrNotFound
	}
	return cloneRecord(latest), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, record *authz.PermissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRecord(record)
	// Existing records keep their creation provenance, matching the SQL
	// upsert's ON CONFLICT column list.
	if existing, ok := s.records[record.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
		cp.CreatedBy = existing.CreatedBy
	}
	s.records[record.UserID] = cp
	return nil
}

func (s *MemoryStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return authz.ErrNotFound
	}
	delete(s.records, userID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, clientIDs *[]string) ([]*authz.PermissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*authz.PermissionRecord
	for _, record := range s.records {
		if clientIDs != nil && !scopeIntersects(record.ClientIDs, *clientIDs) {
			continue
		}
		records = append(records, cloneRecord(record))
	}
	return records, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, clientID, eventID, email string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[participantKey(clientID, eventID, email)] = active
	return nil
}

func (s *MemoryStore) AddAllowlistEntry(ctx context.Context, clientID, eventID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowlist[participantKey(clientID, eventID, email)] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveAllowlistEntry(ctx context.Context, clientID, eventID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowlist, participantKey(clientID, eventID, email))
	return nil
}

func (s *MemoryStore) IsAllowlisted(ctx context.Context, clientID, eventID, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowlist[participantKey(clientID, eventID, email)]
	return ok, nil
}

// IsActive reports the stored participant state; true when never touched.
func (s *MemoryStore) IsActive(clientID, eventID, email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, ok := s.active[participantKey(clientID, eventID, email)]
	if !ok {
		return true
	}
	return active
}

func participantKey(clientID, eventID, email string) string {
	return clientID + "/" + eventID + "/" + strings.ToLower(email)
}

func scopeIntersects(recordIDs *[]string, filter []string) bool {
	if recordIDs == nil {
		return false
	}
	for _, id := range *recordIDs {
		for _, f := range filter {
			if id == f {
				return true
			}
		}
	}
	return false
}

func cloneRecord(record *authz.PermissionRecord) *authz.PermissionRecord {
	cp := *record
	if record.ClientIDs != nil {
		ids := append([]string(nil), *record.ClientIDs...)
		cp.ClientIDs = &ids
	}
	if record.EventIDs != nil {
		ids := append([]string(nil), *record.EventIDs...)
		cp.EventIDs = &ids
	}
	return &cp
}
