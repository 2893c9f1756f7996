package authz

// Predicate library: pure, total functions deciding access over a
// PermissionRecord. These are the single authority consulted by both the
// server-side endpoint guard and client-side UI gating. All functions accept
// a nil record and return false (except where superadmin short-circuits on
// role alone).

// CanManageAdmins reports whether role may grant or revoke clientAdmin
// records. Superadmin only.
func CanManageAdmins(role Role) bool {
	return role == RoleSuperAdmin
}

// CanManageEventAdmins reports whether role may grant or revoke eventAdmin
// records.
func CanManageEventAdmins(role Role) bool {
	return role == RoleSuperAdmin || role == RoleClientAdmin
}

// CanWriteClient reports whether role may create, update, or delete client
// records. Clients are a superadmin-only resource.
func CanWriteClient(role Role) bool {
	return role == RoleSuperAdmin
}

// CanAccessClient reports whether perm grants read access to clientID.
// Superadmin always passes; otherwise the stored ClientIDs list must be
// non-nil and contain clientID. A nil list on a non-superadmin record means
// no access, not all access.
func CanAccessClient(perm *PermissionRecord, clientID string) bool {
	if perm == nil {
		return false
	}
	if perm.Role == RoleSuperAdmin {
		return true
	}
	if perm.ClientIDs == nil {
		return false
	}
	return contains(*perm.ClientIDs, clientID)
}

// CanAccessEvent reports whether perm grants read access to eventID within
// clientID. Client access is a prerequisite. ClientAdmins have full event
// access within their clients regardless of any stored EventIDs value;
// eventAdmins additionally need eventID in a non-nil EventIDs list.
func CanAccessEvent(perm *PermissionRecord, clientID, eventID string) bool {
	if perm == nil {
		return false
	}
	if perm.Role == RoleSuperAdmin {
		return true
	}
	if !CanAccessClient(perm, clientID) {
		return false
	}
	if perm.Role == RoleClientAdmin {
		return true
	}
	if perm.EventIDs == nil {
		return false
	}
	return contains(*perm.EventIDs, eventID)
}

// CanWriteEvent reports whether perm may create or delete event records
// under clientID. Structural event writes are reserved for superadmin and
// in-scope clientAdmins; eventAdmins never qualify even for their own event.
func CanWriteEvent(perm *PermissionRecord, clientID string) bool {
	if perm == nil {
		return false
	}
	switch perm.Role {
	case RoleSuperAdmin:
		return true
	case RoleClientAdmin:
		return CanAccessClient(perm, clientID)
	}
	return false
}

// CanWriteEventContent reports whether perm may mutate content inside an
// event (sessions, posts, participants). Unlike CanWriteEvent, eventAdmins
// qualify when scoped to the event.
func CanWriteEventContent(perm *PermissionRecord, clientID, eventID string) bool {
	if perm == nil {
		return false
	}
	switch perm.Role {
	case RoleSuperAdmin:
		return true
	case RoleClientAdmin:
		return CanAccessClient(perm, clientID)
	case RoleEventAdmin:
		return CanAccessEvent(perm, clientID, eventID)
	}
	return false
}

// AccessibleClientIDs returns the client scope of perm: nil means all
// clients (superadmin), otherwise the stored list coerced to empty when
// absent.
func AccessibleClientIDs(perm *PermissionRecord) *[]string {
	if perm == nil {
		empty := []string{}
		return &empty
	}
	if perm.Role == RoleSuperAdmin {
		return nil
	}
	if perm.ClientIDs == nil {
		empty := []string{}
		return &empty
	}
	return perm.ClientIDs
}

// AccessibleEventIDs returns the event scope of perm: nil means all events
// for both superadmin and clientAdmin, otherwise the stored list coerced to
// empty when absent.
func AccessibleEventIDs(perm *PermissionRecord) *[]string {
	if perm == nil {
		empty := []string{}
		return &empty
	}
	if perm.Role == RoleSuperAdmin || perm.Role == RoleClientAdmin {
		return nil
	}
	if perm.EventIDs == nil {
		empty := []string{}
		return &empty
	}
	return perm.EventIDs
}

// ScopeSubsetOf reports whether every client in target's scope is also in
// caller's scope. Used by role removal: a clientAdmin may only remove an
// eventAdmin whose entire client scope lies within the caller's own. This is
// deliberately a subset check, not an intersection check.
func ScopeSubsetOf(caller, target *PermissionRecord) bool {
	if caller != nil && caller.Role == RoleSuperAdmin {
		return true
	}
	callerIDs := AccessibleClientIDs(caller)
	targetIDs := AccessibleClientIDs(target)
	if callerIDs == nil {
		return true
	}
	if targetIDs == nil {
		return false
	}
	for _, id := range *targetIDs {
		if !contains(*callerIDs, id) {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
