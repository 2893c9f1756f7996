package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STAGEPASS_IDENTITY_FAKE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Store.CacheTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, "@daily", cfg.Audit.SweepSchedule)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STAGEPASS_IDENTITY_FAKE", "true")
	t.Setenv("STAGEPASS_PORT", "8181")
	t.Setenv("STAGEPASS_LOG_LEVEL", "debug")
	t.Setenv("STAGEPASS_CACHE_TTL", "30s")
	t.Setenv("STAGEPASS_POSTGRES_MAX_CONNS", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Store.CacheTTL)
	assert.Equal(t, 25, cfg.Store.PostgresMaxConns)
}

func TestValidateRejectsMissingIdentity(t *testing.T) {
	t.Setenv("STAGEPASS_IDENTITY_FAKE", "")
	t.Setenv("STAGEPASS_OIDC_ISSUER_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsPortClash(t *testing.T) {
	t.Setenv("STAGEPASS_IDENTITY_FAKE", "true")
	t.Setenv("STAGEPASS_PORT", "9090")
	t.Setenv("STAGEPASS_HEALTH_PORT", "9090")

	_, err := LoadConfig()
	assert.Error(t, err)
}
