package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/programme-lv/disttester/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileOverDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
host_ip = "192.168.1.5"

[executor]
async_check_delay = "500ms"

[ports]
min = 30000
max = 30100

[tasks]
backend = "sqs"
sqs_queue_url = "https://sqs.eu-central-1.amazonaws.com/1/tasks"
retry_backoff = "1m"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.5", cfg.HostIP)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.AsyncCheckDelay.Std())
	assert.Equal(t, 30000, cfg.Ports.Min)
	assert.Equal(t, 1000, cfg.Ports.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Tasks.RetryBackoff.Std())
	assert.Equal(t, 4, cfg.Tasks.Workers)
	assert.Equal(t, "docker", cfg.Runtime.Binary)
}

func TestEnvWins(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "host_ip = \"10.0.0.1\"\n")
	t.Setenv("DISTTESTER_HOST_IP", "10.0.0.2")
	t.Setenv("DISTTESTER_DRY_RUN", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.HostIP)
	assert.True(t, cfg.Tasks.DryRun)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DISTTESTER_LMS_TOKEN=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DISTTESTER_LMS_TOKEN") })

	cfg, err := config.Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LMS.Token)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "[executor]\nasync_check_delay = \"soon\"\n"))
	assert.ErrorContains(t, err, "invalid duration")

	_, err = config.Load(writeConfig(t, "[lms]\nkind = \"canvas\"\n"))
	assert.ErrorContains(t, err, "canvas needs")

	_, err = config.Load(writeConfig(t, "[store]\ndriver = \"mongo\"\n"))
	assert.ErrorContains(t, err, "unknown driver")
}

func TestMissingDefaultFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Runtime, cfg.Runtime)
}
