package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*PermissionRecord

	getByIDErr    error
	getByEmailErr error
	upsertErr     error
	deleteErr     error
}

func newFakeStore(records ...*PermissionRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*PermissionRecord)}
	for _, r := range records {
		cp := *r
		s.records[r.UserID] = &cp
	}
	return s
}

func (s *fakeStore) GetByUserID(ctx context.Context, userID string) (*PermissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getByIDErr != nil {
		return nil, s.getByIDErr
	}
	if r, ok := s.records[userID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GetByEmail(ctx context.Context, email string) (*PermissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getByEmailErr != nil {
		return nil, s.getByEmailErr
	}
	for _, r := range s.records {
		if r.Email == email {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) Upsert(ctx context.Context, record *PermissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	cp := *record
	s.records[record.UserID] = &cp
	return nil
}

func (s *fakeStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.records[userID]; !ok {
		return ErrNotFound
	}
	delete(s.records, userID)
	return nil
}

type fakeClaimsWriter struct {
	mu     sync.Mutex
	writes map[string]Role
	err    error
}

func newFakeClaimsWriter() *fakeClaimsWriter {
	return &fakeClaimsWriter{writes: make(map[string]Role)}
}

func (w *fakeClaimsWriter) SetRoleClaims(ctx context.Context, userID string, role Role) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes[userID] = role
	return nil
}

func (w *fakeClaimsWriter) roleFor(userID string) (Role, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.writes[userID]
	return r, ok
}

func TestResolveSuperAdminClaim(t *testing.T) {
	store := newFakeStore()
	claims := newFakeClaimsWriter()
	resolver := NewResolver(store, claims, nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1", SuperAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, res.Role)
	assert.Nil(t, res.Permissions)

	// Legacy admin claim grants the same.
	res, err = resolver.Resolve(context.Background(), TokenClaims{Subject: "u2", LegacyAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, res.Role)
	assert.Nil(t, res.Permissions)

	// No record lookup and no claim writes on the fast path.
	_, healed := claims.roleFor("u1")
	assert.False(t, healed)
}

func TestResolveRoleClaimWithRecord(t *testing.T) {
	rec := &PermissionRecord{UserID: "u1", Email: "a@example.com", Role: RoleClientAdmin, ClientIDs: strs("c1")}
	resolver := NewResolver(newFakeStore(rec), newFakeClaimsWriter(), nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1", Role: RoleClientAdmin})
	require.NoError(t, err)
	assert.Equal(t, RoleClientAdmin, res.Role)
	require.NotNil(t, res.Permissions)
	assert.Equal(t, "u1", res.Permissions.UserID)
}

func TestResolveRoleClaimWithoutRecordIsDegradedNotError(t *testing.T) {
	resolver := NewResolver(newFakeStore(), newFakeClaimsWriter(), nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1", Role: RoleClientAdmin})
	require.NoError(t, err)
	assert.Equal(t, RoleClientAdmin, res.Role)
	assert.Nil(t, res.Permissions)
}

func TestResolveNoClaimsHealsFromRecord(t *testing.T) {
	rec := &PermissionRecord{UserID: "u1", Email: "a@example.com", Role: RoleEventAdmin, ClientIDs: strs("c1"), EventIDs: strs("e1")}
	store := newFakeStore(rec)
	claims := newFakeClaimsWriter()
	resolver := NewResolver(store, claims, nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1"})
	require.NoError(t, err)
	assert.Equal(t, RoleEventAdmin, res.Role)
	require.NotNil(t, res.Permissions)

	role, healed := claims.roleFor("u1")
	assert.True(t, healed)
	assert.Equal(t, RoleEventAdmin, role)
}

func TestResolveEmailFallbackMigratesRecord(t *testing.T) {
	legacy := &PermissionRecord{
		UserID:    "legacy-uid",
		Email:     "a@example.com",
		Role:      RoleEventAdmin,
		ClientIDs: strs("c1"),
		EventIDs:  strs("e1"),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	store := newFakeStore(legacy)
	claims := newFakeClaimsWriter()
	resolver := NewResolver(store, claims, nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "new-uid", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, RoleEventAdmin, res.Role)
	require.NotNil(t, res.Permissions)
	assert.Equal(t, "new-uid", res.Permissions.UserID)

	// Old key removed, exactly one record remains at the canonical ID.
	store.mu.Lock()
	assert.Len(t, store.records, 1)
	_, oldExists := store.records["legacy-uid"]
	store.mu.Unlock()
	assert.False(t, oldExists)

	role, healed := claims.roleFor("new-uid")
	assert.True(t, healed)
	assert.Equal(t, RoleEventAdmin, role)
}

func TestResolveMigrationIsIdempotent(t *testing.T) {
	legacy := &PermissionRecord{UserID: "legacy-uid", Email: "a@example.com", Role: RoleEventAdmin, ClientIDs: strs("c1"), EventIDs: strs("e1")}
	store := newFakeStore(legacy)
	resolver := NewResolver(store, newFakeClaimsWriter(), nil)

	tc := TokenClaims{Subject: "new-uid", Email: "a@example.com"}
	first, err := resolver.Resolve(context.Background(), tc)
	require.NoError(t, err)

	// Second run finds the record at the canonical ID via the fast path
	// and never reaches the email-fallback branch.
	second, err := resolver.Resolve(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, first.Role, second.Role)
	assert.Equal(t, first.Permissions.UserID, second.Permissions.UserID)
	store.mu.Lock()
	assert.Len(t, store.records, 1)
	store.mu.Unlock()
}

func TestResolveNoClaimsNoRecord(t *testing.T) {
	resolver := NewResolver(newFakeStore(), newFakeClaimsWriter(), nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Empty(t, res.Role)
	assert.Nil(t, res.Permissions)
}

func TestResolveStoreErrorIsNotNotFound(t *testing.T) {
	store := newFakeStore()
	store.getByIDErr = errors.New("connection refused")
	resolver := NewResolver(store, newFakeClaimsWriter(), nil)

	_, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
}

func TestResolveEmailLookupStoreError(t *testing.T) {
	store := newFakeStore()
	store.getByEmailErr = errors.New("connection refused")
	resolver := NewResolver(store, newFakeClaimsWriter(), nil)

	_, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1", Email: "a@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
}

func TestResolveHealFailureIsNonFatal(t *testing.T) {
	rec := &PermissionRecord{UserID: "u1", Email: "a@example.com", Role: RoleClientAdmin, ClientIDs: strs("c1")}
	store := newFakeStore(rec)
	claims := newFakeClaimsWriter()
	claims.err = errors.New("provider unavailable")
	resolver := NewResolver(store, claims, nil)

	res, err := resolver.Resolve(context.Background(), TokenClaims{Subject: "u1"})
	require.NoError(t, err)
	assert.Equal(t, RoleClientAdmin, res.Role)
	require.NotNil(t, res.Permissions)
}

func TestResolveMissingSubject(t *testing.T) {
	resolver := NewResolver(newFakeStore(), newFakeClaimsWriter(), nil)

	_, err := resolver.Resolve(context.Background(), TokenClaims{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveConcurrentSameSubject(t *testing.T) {
	legacy := &PermissionRecord{UserID: "legacy-uid", Email: "a@example.com", Role: RoleEventAdmin, ClientIDs: strs("c1"), EventIDs: strs("e1")}
	store := newFakeStore(legacy)
	resolver := NewResolver(store, newFakeClaimsWriter(), nil)

	tc := TokenClaims{Subject: "new-uid", Email: "a@example.com"}
	var wg sync.WaitGroup
	results := make([]*Resolution, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(context.Background(), tc)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, RoleEventAdmin, res.Role)
		require.NotNil(t, res.Permissions)
		assert.Equal(t, "new-uid", res.Permissions.UserID)
	}
	store.mu.Lock()
	assert.Len(t, store.records, 1)
	store.mu.Unlock()
}
