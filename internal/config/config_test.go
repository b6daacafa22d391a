package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScanCleanup/internal/cleanup/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_NestedConfig(t *testing.T) {
	path := writeConfig(t, `
console:
  host: nexpose.corp.local
  port: 3781
  username: nxadmin
  password: secret
  request_timeout: 45s
cleanup:
  queue_ceiling: 8
  interval: 2m
  retry_backoff: 10s
logging:
  level: debug
  format: json
redis:
  enabled: true
  addr: cache:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nexpose.corp.local", cfg.Console.Host)
	assert.Equal(t, 3781, cfg.Console.Port)
	assert.Equal(t, 45*time.Second, cfg.Console.RequestTimeout)
	assert.Equal(t, 8, cfg.Cleanup.QueueCeiling)
	assert.Equal(t, 1, cfg.Cleanup.Headroom)
	assert.Equal(t, 2*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, 10*time.Second, cfg.Cleanup.RetryBackoff)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "/api/1.1/xml", cfg.Console.APIPath)
	assert.Equal(t, "https://nexpose.corp.local:3781", cfg.Console.BaseURL())
}

func TestLoad_LegacyKeys(t *testing.T) {
	path := writeConfig(t, `
hostname: nexpose.corp.local
username: nxadmin
passwordkey: secret
port: 3780
cleanupqueue: 4
cleanupwaittime: 300
nexposeajaxtimeout: 120
servicetimeout: 12
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nexpose.corp.local", cfg.Console.Host)
	assert.Equal(t, "nxadmin", cfg.Console.Username)
	assert.Equal(t, "secret", cfg.Console.Password)
	assert.Equal(t, 3780, cfg.Console.Port)
	assert.Equal(t, 4, cfg.Cleanup.QueueCeiling)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.RetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Console.RequestTimeout)
	assert.Equal(t, 12, cfg.Probe.Attempts)
}

func TestLoad_NestedKeysWinOverLegacy(t *testing.T) {
	path := writeConfig(t, `
hostname: old.corp.local
username: nxadmin
passwordkey: secret
cleanupqueue: 4
console:
  host: new.corp.local
cleanup:
  queue_ceiling: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new.corp.local", cfg.Console.Host)
	assert.Equal(t, 6, cfg.Cleanup.QueueCeiling)
	assert.Equal(t, "nxadmin", cfg.Console.Username)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
hostname: nexpose.corp.local
username: nxadmin
passwordkey: secret
cleanupqueue: 4
`)
	t.Setenv("SCANCLEANUP_CLEANUP_QUEUE_CEILING", "9")
	t.Setenv("SCANCLEANUP_CONSOLE_PASSWORD", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Cleanup.QueueCeiling)
	assert.Equal(t, "from-env", cfg.Console.Password)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing host", "console:\n  username: a\n  password: b\n"},
		{"url as host", "console:\n  host: https://nexpose\n  username: a\n  password: b\n"},
		{"negative ceiling", "console:\n  host: nexpose\n  username: a\n  password: b\ncleanup:\n  queue_ceiling: -1\n"},
		{"zero interval", "console:\n  host: nexpose\n  username: a\n  password: b\ncleanup:\n  interval: 0s\n"},
		{"bad cron", "console:\n  host: nexpose\n  username: a\n  password: b\nschedule:\n  cron: sometimes\n"},
		{"bad log level", "console:\n  host: nexpose\n  username: a\n  password: b\nlogging:\n  level: loud\n"},
		{"legacy wait not a number", "hostname: nexpose\nusername: a\npasswordkey: b\ncleanupwaittime: soon\n"},
		{"server port out of range", "console:\n  host: nexpose\n  username: a\n  password: b\nserver:\n  enabled: true\n  port: 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestLoad_WarnsWhenNoScanCanResume(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	base := "console:\n  host: nexpose\n  username: a\n  password: b\n"

	_, err := Load(writeConfig(t, base+"cleanup:\n  queue_ceiling: 0\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "queue ceiling is 0")

	buf.Reset()
	_, err = Load(writeConfig(t, base+"cleanup:\n  queue_ceiling: 2\n  headroom: 2\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "headroom leaves no queue slots")

	buf.Reset()
	_, err = Load(writeConfig(t, base))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "level=WARN")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "cleanup", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cleanup sslmode=disable", d.DSN())
}

func TestRedisConfig_Options(t *testing.T) {
	r := RedisConfig{Addr: "cache:6379", DB: 2}
	opts := r.GetRedisOptions()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
