package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(ids ...string) *[]string {
	s := make([]string, len(ids))
	copy(s, ids)
	return &s
}

func record(role Role, clientIDs, eventIDs *[]string) *PermissionRecord {
	return &PermissionRecord{
		UserID:    "u1",
		Email:     "u1@example.com",
		Role:      role,
		ClientIDs: clientIDs,
		EventIDs:  eventIDs,
	}
}

func TestCanManageAdmins(t *testing.T) {
	assert.True(t, CanManageAdmins(RoleSuperAdmin))
	assert.False(t, CanManageAdmins(RoleClientAdmin))
	assert.False(t, CanManageAdmins(RoleEventAdmin))
	assert.False(t, CanManageAdmins(Role("")))
}

func TestCanManageEventAdmins(t *testing.T) {
	assert.True(t, CanManageEventAdmins(RoleSuperAdmin))
	assert.True(t, CanManageEventAdmins(RoleClientAdmin))
	assert.False(t, CanManageEventAdmins(RoleEventAdmin))
	assert.False(t, CanManageEventAdmins(Role("")))
}

func TestCanWriteClient(t *testing.T) {
	assert.True(t, CanWriteClient(RoleSuperAdmin))
	assert.False(t, CanWriteClient(RoleClientAdmin))
	assert.False(t, CanWriteClient(RoleEventAdmin))
}

func TestCanAccessClient(t *testing.T) {
	tests := []struct {
		name     string
		perm     *PermissionRecord
		clientID string
		want     bool
	}{
		{"nil record", nil, "c1", false},
		{"superadmin with nil lists", record(RoleSuperAdmin, nil, nil), "c1", true},
		{"superadmin ignores stored lists", record(RoleSuperAdmin, strs("other"), nil), "c1", true},
		{"clientAdmin member", record(RoleClientAdmin, strs("c1", "c2"), nil), "c1", true},
		{"clientAdmin non-member", record(RoleClientAdmin, strs("c1", "c2"), nil), "c3", false},
		{"clientAdmin nil clientIds means none", record(RoleClientAdmin, nil, nil), "c1", false},
		{"clientAdmin empty clientIds means none", record(RoleClientAdmin, strs(), nil), "c1", false},
		{"eventAdmin member", record(RoleEventAdmin, strs("c1"), strs("e1")), "c1", true},
		{"eventAdmin non-member", record(RoleEventAdmin, strs("c1"), strs("e1")), "c2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessClient(tt.perm, tt.clientID))
		})
	}
}

func TestCanAccessEvent(t *testing.T) {
	tests := []struct {
		name     string
		perm     *PermissionRecord
		clientID string
		eventID  string
		want     bool
	}{
		{"nil record", nil, "c1", "e1", false},
		{"superadmin", record(RoleSuperAdmin, nil, nil), "c1", "e1", true},
		{"clientAdmin full event access in own client", record(RoleClientAdmin, strs("c1"), nil), "c1", "e1", true},
		{"clientAdmin eventIds ignored", record(RoleClientAdmin, strs("c1"), strs("e9")), "c1", "e1", true},
		{"clientAdmin outside client scope", record(RoleClientAdmin, strs("c1"), nil), "c2", "e1", false},
		{"eventAdmin both memberships", record(RoleEventAdmin, strs("c1"), strs("e1")), "c1", "e1", true},
		{"eventAdmin missing event membership", record(RoleEventAdmin, strs("c1"), strs("e2")), "c1", "e1", false},
		{"eventAdmin missing client membership", record(RoleEventAdmin, strs("c2"), strs("e1")), "c1", "e1", false},
		{"eventAdmin nil eventIds means none", record(RoleEventAdmin, strs("c1"), nil), "c1", "e1", false},
		{"eventAdmin empty eventIds means none", record(RoleEventAdmin, strs("c1"), strs()), "c1", "e1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessEvent(tt.perm, tt.clientID, tt.eventID))
		})
	}
}

func TestCanWriteEvent(t *testing.T) {
	tests := []struct {
		name     string
		perm     *PermissionRecord
		clientID string
		want     bool
	}{
		{"nil record", nil, "c1", false},
		{"superadmin", record(RoleSuperAdmin, nil, nil), "c1", true},
		{"clientAdmin in scope", record(RoleClientAdmin, strs("c1"), nil), "c1", true},
		{"clientAdmin out of scope", record(RoleClientAdmin, strs("c2"), nil), "c1", false},
		// Structural event writes are never granted to eventAdmins, even
		// for their own event.
		{"eventAdmin always denied", record(RoleEventAdmin, strs("c1"), strs("e1")), "c1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanWriteEvent(tt.perm, tt.clientID))
		})
	}
}

func TestCanWriteEventContent(t *testing.T) {
	tests := []struct {
		name     string
		perm     *PermissionRecord
		clientID string
		eventID  string
		want     bool
	}{
		{"nil record", nil, "c1", "e1", false},
		{"superadmin", record(RoleSuperAdmin, nil, nil), "c1", "e1", true},
		{"clientAdmin via client access", record(RoleClientAdmin, strs("c1"), nil), "c1", "e1", true},
		{"clientAdmin out of scope", record(RoleClientAdmin, strs("c2"), nil), "c1", "e1", false},
		{"eventAdmin via event access", record(RoleEventAdmin, strs("c1"), strs("e1")), "c1", "e1", true},
		{"eventAdmin without event membership", record(RoleEventAdmin, strs("c1"), strs("e2")), "c1", "e1", false},
		{"eventAdmin without client membership", record(RoleEventAdmin, strs("c2"), strs("e1")), "c1", "e1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanWriteEventContent(tt.perm, tt.clientID, tt.eventID))
		})
	}
}

func TestAccessibleClientIDs(t *testing.T) {
	assert.Nil(t, AccessibleClientIDs(record(RoleSuperAdmin, nil, nil)))
	assert.Nil(t, AccessibleClientIDs(record(RoleSuperAdmin, strs("c1"), nil)))

	got := AccessibleClientIDs(record(RoleClientAdmin, strs("c1", "c2"), nil))
	require.NotNil(t, got)
	assert.Equal(t, []string{"c1", "c2"}, *got)

	got = AccessibleClientIDs(record(RoleClientAdmin, nil, nil))
	require.NotNil(t, got)
	assert.Empty(t, *got)

	got = AccessibleClientIDs(nil)
	require.NotNil(t, got)
	assert.Empty(t, *got)
}

func TestAccessibleEventIDs(t *testing.T) {
	assert.Nil(t, AccessibleEventIDs(record(RoleSuperAdmin, nil, nil)))
	// ClientAdmin always has full event access within its clients, even
	// when the stored record carries an eventIds value.
	assert.Nil(t, AccessibleEventIDs(record(RoleClientAdmin, strs("c1"), strs("e1"))))

	got := AccessibleEventIDs(record(RoleEventAdmin, strs("c1"), strs("e1")))
	require.NotNil(t, got)
	assert.Equal(t, []string{"e1"}, *got)

	got = AccessibleEventIDs(record(RoleEventAdmin, strs("c1"), nil))
	require.NotNil(t, got)
	assert.Empty(t, *got)
}

func TestScopeSubsetOf(t *testing.T) {
	caller := record(RoleClientAdmin, strs("c1"), nil)

	assert.True(t, ScopeSubsetOf(caller, record(RoleEventAdmin, strs("c1"), strs("e1"))))
	// Target reaching into c2 fails the subset check even though c1
	// intersects.
	assert.False(t, ScopeSubsetOf(caller, record(RoleEventAdmin, strs("c1", "c2"), strs("e1"))))
	assert.True(t, ScopeSubsetOf(caller, record(RoleEventAdmin, strs(), nil)))
	assert.False(t, ScopeSubsetOf(caller, record(RoleSuperAdmin, nil, nil)))
	assert.True(t, ScopeSubsetOf(record(RoleSuperAdmin, nil, nil), record(RoleClientAdmin, strs("c1", "c2"), nil)))
}

func TestRoleValidity(t *testing.T) {
	assert.True(t, RoleSuperAdmin.Valid())
	assert.True(t, RoleClientAdmin.Valid())
	assert.True(t, RoleEventAdmin.Valid())
	assert.False(t, Role("admin").Valid())

	assert.False(t, RoleSuperAdmin.Assignable())
	assert.True(t, RoleClientAdmin.Assignable())
	assert.True(t, RoleEventAdmin.Assignable())
}

func TestSynthesizeSuperAdmin(t *testing.T) {
	perm := SynthesizeSuperAdmin("u1", "root@example.com")
	assert.Equal(t, RoleSuperAdmin, perm.Role)
	assert.Nil(t, perm.ClientIDs)
	assert.Nil(t, perm.EventIDs)
	assert.True(t, CanAccessClient(perm, "anything"))
	assert.True(t, CanWriteEventContent(perm, "c", "e"))
}
