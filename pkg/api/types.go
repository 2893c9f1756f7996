package api

// AssignRoleRequest is the body of POST /api/v1/roles.
type AssignRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	// ClientIDs is required and must be non-empty; an admin is always
	// granted into at least one client.
	ClientIDs []string `json:"clientIds"`
	// EventIDs further restricts eventAdmin grants. Absent means no event
	// access until extended.
	EventIDs *[]string `json:"eventIds,omitempty"`
}

// AssignRoleResponse returns the target principal's ID, which may have been
// freshly provisioned.
type AssignRoleResponse struct {
	UserID string `json:"userId"`
}

// RemoveRoleRequest is the body of DELETE /api/v1/roles.
type RemoveRoleRequest struct {
	UserID string `json:"userId"`
}
