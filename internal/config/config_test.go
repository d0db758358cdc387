package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	r := require.New(t)
	cfg := Default()

	r.NoError(validator.New().Struct(cfg))
	r.Equal(10, cfg.Chat.HistoryLimit)
	r.Equal(500, cfg.Chat.MaxMessageLength)
	r.Equal("KC", cfg.Federation.IssuerKind)
	r.Equal("B2B", cfg.Federation.TenantClaim)
	r.Equal(1200*time.Second, cfg.Federation.JWKSTTL)
	r.Equal(DriverSQLite, cfg.Storage.Driver)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	r.NoError(os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := "mode: test\nport: 9000\nstorage:\n  driver: badger\n  dsn: /tmp/chat\nchat:\n  history_limit: 5\n"
	r.NoError(os.WriteFile(filepath.Join(dir, "config", "config.unit.yaml"), []byte(yaml), 0o644))

	wd, err := os.Getwd()
	r.NoError(err)
	r.NoError(os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("CONFIG_ENV", "unit")
	t.Setenv("CHAT_PORT", "9100")

	cfg, err := Load()
	r.NoError(err)
	r.Equal("test", cfg.Mode)
	r.Equal(9100, cfg.Port)
	r.Equal(DriverBadger, cfg.Storage.Driver)
	r.Equal(5, cfg.Chat.HistoryLimit)
	r.Equal(500, cfg.Chat.MaxMessageLength)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	r.NoError(os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := "storage:\n  driver: postgres\n"
	r.NoError(os.WriteFile(filepath.Join(dir, "config", "config.bad.yaml"), []byte(yaml), 0o644))

	wd, err := os.Getwd()
	r.NoError(err)
	r.NoError(os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "bad")

	_, err = Load()
	r.Error(err)
}
