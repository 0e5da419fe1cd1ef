package envconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("JOBS_INTERVAL", "2s")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "challengeAuth", cfg.AppName)
	require.Equal(t, 2*time.Second, cfg.JobsInterval)
	require.Equal(t, 6543, cfg.DBPort)
	require.True(t, cfg.LogDev)
	require.False(t, cfg.UseDatabase())
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"jwt_secret: from-file-0123456789\n"+
			"db_host: db.internal\n"+
			"db_name: auth\n"+
			"http_addr: \":9000\"\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file-0123456789", cfg.JWTSecret)
	require.Equal(t, ":9100", cfg.HTTPAddr)
	require.True(t, cfg.UseDatabase())
	require.Contains(t, cfg.DSN(), "host=db.internal")
	require.Contains(t, cfg.DSN(), "dbname=auth")
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "short")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
