package xdg_test

import (
	"path/filepath"
	"testing"

	"github.com/programme-lv/disttester/internal/xdg"
	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", "/home/grader")
	t.Setenv("XDG_CONFIG_HOME", "/etc/grader")
	t.Setenv("XDG_CACHE_HOME", "relative/cache")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, "/etc/grader", xdg.ConfigHome())
	assert.Equal(t, filepath.Join("/home/grader", ".cache"), xdg.CacheHome())
	assert.Equal(t, filepath.Join("/home/grader", ".local", "share"), xdg.DataHome())
}

func TestRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000", xdg.RuntimeDir())

	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("USER", "grader")
	assert.Contains(t, xdg.RuntimeDir(), "disttester-runtime-grader")
}
