package docker_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/shell"
	"github.com/programme-lv/disttester/internal/shell/shelltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLICommands(t *testing.T) {
	ctx := context.Background()
	sh := &shelltest.Fake{RunFunc: func(string) shell.Result {
		return shell.Result{Output: []byte("true\n")}
	}}
	cli := docker.NewCLI(sh, "podman", "", slog.Default())

	_, err := cli.Exec(ctx, "abc", "echo 'hi there' > out")
	require.NoError(t, err)
	require.NoError(t, cli.ExecDetached(ctx, "abc", "./server &"))
	require.NoError(t, cli.Stop(ctx, "replica0", true))
	require.NoError(t, cli.Stop(ctx, "replica1", false))
	state, err := cli.Inspect(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, docker.State{Exists: true, Running: true}, state)

	require.Len(t, sh.Ran(), 4)
	assert.Equal(t, []string{"podman", "exec", "abc", "bash", "-c", "echo 'hi there' > out"}, split(t, sh.Ran()[0]))
	assert.Equal(t, []string{"podman", "exec", "-d", "abc", "bash", "-c", "./server &"}, split(t, sh.Ran()[1]))
	assert.Equal(t, "podman stop replica0 || true && podman rm replica0", sh.Ran()[2])
	assert.Equal(t, []string{"podman", "inspect", "-f", "{{.State.Running}}", "abc"}, split(t, sh.Ran()[3]))
	assert.Equal(t, []string{`podman stop replica1 || true && podman rm replica1`}, sh.Started())
}

func TestCLIInspectMissingContainer(t *testing.T) {
	sh := &shelltest.Fake{RunFunc: func(string) shell.Result {
		return shell.Result{Output: []byte("Error: No such object"), ExitCode: 1}
	}}
	cli := docker.NewCLI(sh, "", "sh", slog.Default())

	state, err := cli.Inspect(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, state.Exists)
	assert.Equal(t, []string{"docker", "inspect", "-f", "{{.State.Running}}", "gone"}, split(t, sh.Ran()[0]))
}

func split(t *testing.T, cmd string) []string {
	t.Helper()
	words, err := shellquote.Split(cmd)
	require.NoError(t, err)
	return words
}
