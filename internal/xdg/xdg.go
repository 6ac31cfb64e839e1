// Package xdg resolves the base directories of the XDG Base Directory
// Specification for the current user.
package xdg

import (
	"os"
	"path/filepath"
)

func home() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	if dir := os.Getenv("HOME"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// lookup returns $env when it holds an absolute path. Relative values are
// invalid per the specification and fall back to home/rel.
func lookup(env string, rel ...string) string {
	if v := os.Getenv(env); v != "" && filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(append([]string{home()}, rel...)...)
}

func ConfigHome() string { return lookup("XDG_CONFIG_HOME", ".config") }
func DataHome() string   { return lookup("XDG_DATA_HOME", ".local", "share") }
func CacheHome() string  { return lookup("XDG_CACHE_HOME", ".cache") }

// RuntimeDir returns $XDG_RUNTIME_DIR or a per-user directory under the
// system temp dir when it is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" && filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(os.TempDir(), "disttester-runtime-"+os.Getenv("USER"))
}

// EnsureRuntimeDir creates dir readable only by the owner.
func EnsureRuntimeDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
