package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "opencity.db", cfg.Database.Path)
	assert.False(t, cfg.Production())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000
env = "production"

[logging]
level = "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Production())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0o644))

	t.Setenv("PORT", "7777")
	t.Setenv("DB_PATH", "/tmp/town.db")
	t.Setenv("REGISTRATION_TOKEN", "sekrit")
	t.Setenv("OPENCITY_ENV", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "/tmp/town.db", cfg.Database.Path)
	assert.Equal(t, "sekrit", cfg.Auth.RegistrationToken)
	assert.True(t, cfg.Production())
}

func TestBadPortEnvIgnored(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
