package shell_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/programme-lv/disttester/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBashRun(t *testing.T) {
	b := shell.NewBash(slog.Default())

	res, err := b.Run(context.Background(), "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
	assert.Contains(t, string(res.Output), "out")
	assert.Contains(t, string(res.Output), "err")

	res, err = b.Run(context.Background(), "true")
	require.NoError(t, err)
	assert.True(t, res.Ok())
}

func TestBashRunHonoursDeadline(t *testing.T) {
	b := shell.NewBash(slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := b.Run(ctx, "sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBashStart(t *testing.T) {
	b := shell.NewBash(slog.Default())
	marker := filepath.Join(t.TempDir(), "done")

	require.NoError(t, b.Start(context.Background(), "touch "+marker))
	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}
