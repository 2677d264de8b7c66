package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, "tsk_k_", cfg.APIKeys.Prefix)
	assert.Equal(t, 10, cfg.APIKeys.MaxPerUser)
	assert.Equal(t, 5*time.Minute, cfg.EventHorizon.StateTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8081
jwt:
  secret: from-file
  access_token_ttl: 10m
eventhorizon:
  client_id: tasker
  allowed_redirect_uris:
    - tasker://auth/callback
    - https://app.example.com/auth/callback
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "tasker", cfg.EventHorizon.ClientID)
	assert.Equal(t, []string{"tasker://auth/callback", "https://app.example.com/auth/callback"}, cfg.EventHorizon.AllowedRedirectURIs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
