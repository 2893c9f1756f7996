package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/pkg/authz"
)

func TestClientResolveClaims(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/claims", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(authz.Resolution{
			Role: authz.RoleClientAdmin,
			Permissions: &authz.PermissionRecord{
				UserID: "u1", Role: authz.RoleClientAdmin,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resolution, err := client.ResolveClaims(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleClientAdmin, resolution.Role)
	require.NotNil(t, resolution.Permissions)
}

func TestClientResolveClaimsStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, authz.ErrInvalidToken},
		{"provider down", http.StatusServiceUnavailable, authz.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			_, err := client.ResolveClaims(context.Background(), "tok")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClientResolveClaimsUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ResolveClaims(context.Background(), "tok")
	assert.Error(t, err)
}
