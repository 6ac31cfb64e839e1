package docker_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/docker/dockertest"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const image = "docker run -d --name NAME -v SUBMISSIONS:/submission PORTS grader"

func TestStartReplacingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := dockertest.New()
	reg := registry.New()
	lc := docker.NewLifecycle(rt, reg, image, slog.Default())

	first, err := lc.StartReplacing(ctx, "replica0", "/work/a", 2)
	require.NoError(t, err)
	second, err := lc.StartReplacing(ctx, "replica0", "/work/b", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, second, reg.Get("replica0"))
	assert.NotEqual(t, first.ID, second.ID)
	for _, p := range first.Ports {
		if !slices.Contains(second.Ports, p) {
			assert.False(t, reg.Reserved(p))
		}
	}

	live := rt.Live()
	require.Len(t, live, 1)
	assert.Equal(t, second.ID, live[0].ID)
	assert.Contains(t, live[0].Launch, "-v /work/b:/submission")
	assert.Equal(t, []string{"start replica0", "stop replica0", "start replica0"}, rt.Events())
}

func TestStartReplacingRemovesStaleContainer(t *testing.T) {
	ctx := context.Background()
	rt := dockertest.New()
	// left over from an earlier run, unknown to this registry
	_, err := rt.Start(ctx, "docker run -d --name replica1 grader")
	require.NoError(t, err)

	lc := docker.NewLifecycle(rt, registry.New(), image, slog.Default())
	_, err = lc.StartReplacing(ctx, "replica1", "/work", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"start replica1", "stop replica1", "start replica1"}, rt.Events())
	assert.Len(t, rt.Live(), 1)
}

func TestLaunchFailureReleasesPorts(t *testing.T) {
	ctx := context.Background()
	rt := dockertest.New()
	rt.LaunchFails = func(launch string) bool { return strings.Contains(launch, "replica1") }
	reg := registry.New(registry.WithPortRange(10000, 10001))
	lc := docker.NewLifecycle(rt, reg, image, slog.Default())

	_, err := lc.StartReplacing(ctx, "replica1", "/work", 2)
	var launchErr *failures.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, 125, launchErr.ExitCode)
	assert.Zero(t, reg.Count())
	assert.False(t, reg.Reserved(10000))
	assert.False(t, reg.Reserved(10001))

	rec, err := lc.StartReplacing(ctx, "replica0", "/work", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{10000, 10001}, rec.Ports)
}

func TestControllerLifecycle(t *testing.T) {
	ctx := context.Background()
	rt := dockertest.New()
	reg := registry.New()
	lc := docker.NewLifecycle(rt, reg, image, slog.Default())

	ctl, err := lc.StartController(ctx, "/work", 1)
	require.NoError(t, err)
	assert.Equal(t, registry.ControllerName, ctl.Name)

	_, err = lc.StartController(ctx, "/work", 1)
	require.Error(t, err)
	assert.Len(t, rt.Live(), 1)

	_, err = lc.StartReplacing(ctx, "replica0", "/work", 1)
	require.NoError(t, err)
	require.NoError(t, lc.StopReplicas(ctx))
	require.NoError(t, lc.StopController(ctx, true))
	assert.Empty(t, rt.Live())
	assert.Nil(t, reg.Controller())
	assert.Zero(t, reg.Count())
}
