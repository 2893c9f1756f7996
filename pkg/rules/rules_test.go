package rules

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/observability"
)

func anon() Request {
	return Request{}
}

func authed(claims authz.TokenClaims) Request {
	return Request{Authenticated: true, Claims: claims}
}

func TestDefaultRuleSetValidates(t *testing.T) {
	require.NoError(t, DefaultRuleSet().Validate())
}

func TestRuleSetAllows(t *testing.T) {
	rs := DefaultRuleSet()
	super := authz.TokenClaims{Subject: "s1", SuperAdmin: true}
	clientAdmin := authz.TokenClaims{Subject: "ca1", Role: authz.RoleClientAdmin}
	eventAdmin := authz.TokenClaims{Subject: "ea1", Role: authz.RoleEventAdmin}
	noRole := authz.TokenClaims{Subject: "u1"}

	tests := []struct {
		name       string
		collection string
		op         Op
		req        Request
		want       bool
	}{
		{"anonymous cannot read events", "events", OpRead, anon(), false},
		{"authenticated reads events", "events", OpRead, authed(noRole), true},
		{"authenticated reads whitelist", "whitelist", OpRead, authed(noRole), true},
		{"no role cannot write events", "events", OpWrite, authed(noRole), false},
		{"eventAdmin cannot write events", "events", OpWrite, authed(eventAdmin), false},
		{"clientAdmin writes events", "events", OpWrite, authed(clientAdmin), true},
		{"eventAdmin writes whitelist", "whitelist", OpWrite, authed(eventAdmin), true},
		{"eventAdmin reads clients", "clients", OpRead, authed(eventAdmin), true},
		{"no role cannot read clients", "clients", OpRead, authed(noRole), false},
		{"only superadmin writes clients", "clients", OpWrite, authed(clientAdmin), false},
		{"superadmin writes clients", "clients", OpWrite, authed(super), true},
		{"unknown collection denies", "secrets", OpRead, authed(super), false},
		{"eventAdmin reads permissions", "permissions", OpRead, authed(eventAdmin), true},
		{"no role cannot read permissions", "permissions", OpRead, authed(noRole), false},
		{"nobody writes permissions", "permissions", OpWrite, authed(super), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.Allows(tt.collection, tt.op, tt.req))
		})
	}
}

func TestSelfAccess(t *testing.T) {
	rs := DefaultRuleSet()

	owner := Request{Authenticated: true, Claims: authz.TokenClaims{Subject: "u1"}, OwnerID: "u1"}
	other := Request{Authenticated: true, Claims: authz.TokenClaims{Subject: "u2"}, OwnerID: "u1"}
	missing := Request{Authenticated: true, Claims: authz.TokenClaims{Subject: "u1"}}

	assert.True(t, rs.Allows("registrations", OpRead, owner))
	assert.True(t, rs.Allows("registrations", OpWrite, owner))
	assert.False(t, rs.Allows("registrations", OpRead, other))
	assert.False(t, rs.Allows("registrations", OpRead, missing))
}

func TestParseRejectsBadPolicies(t *testing.T) {
	_, err := Parse([]byte("version: 2\ncollections: {}"))
	assert.Error(t, err)

	_, err = Parse([]byte("version: 1\ncollections:\n  events:\n    read: everyone\n    write: none"))
	assert.Error(t, err)

	_, err = Parse([]byte("{not yaml"))
	assert.Error(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	policy := `version: 1
collections:
  events:
    read: authenticated
    write: clientAdmin
`
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o644))

	rs, err := Load(path)
	require.NoError(t, err)
	assert.True(t, rs.Allows("events", OpRead, authed(authz.TokenClaims{Subject: "u1"})))
}

func TestEngineHotReload(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
collections:
  events:
    read: authenticated
    write: clientAdmin
`), 0o644))

	engine, err := NewEngine(path, logger)
	require.NoError(t, err)
	defer engine.Close()

	req := authed(authz.TokenClaims{Subject: "u1"})
	require.True(t, engine.Allows("events", OpRead, req))

	// Tighten the policy on disk; the engine picks it up.
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
collections:
  events:
    read: superadmin
    write: superadmin
`), 0o644))

	require.Eventually(t, func() bool {
		return !engine.Allows("events", OpRead, req)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineKeepsPolicyOnBadReload(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
collections:
  events:
    read: authenticated
    write: clientAdmin
`), 0o644))

	engine, err := NewEngine(path, logger)
	require.NoError(t, err)
	defer engine.Close()

	req := authed(authz.TokenClaims{Subject: "u1"})
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	// Give the watcher a moment; the old policy stays in force.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, engine.Allows("events", OpRead, req))
}

func TestEngineDefaultPolicy(t *testing.T) {
	engine, err := NewEngine("", nil)
	require.NoError(t, err)
	defer engine.Close()
	assert.True(t, engine.Allows("events", OpRead, authed(authz.TokenClaims{Subject: "u1"})))
}
