package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/programme-lv/disttester/api"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/pool/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func parseRun(t *testing.T, args ...string) (api.GradeReq, error) {
	t.Helper()
	a := &app{}
	cmd := a.runCommand()
	var req api.GradeReq
	var reqErr error
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		req, reqErr = a.gradeReq(cmd)
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"run"}, args...)))
	return req, reqErr
}

func TestGradeReqFromFlags(t *testing.T) {
	req, err := parseRun(t,
		"--assignment", "a1", "--student-id", "42", "--work-dir", "/subm",
		"--attachments-json", `[{"display_name":"x.zip","url":"file:///tmp/x.zip"}]`,
		"spec.txt")
	require.NoError(t, err)

	assert.Equal(t, "spec.txt", req.SpecPath)
	assert.Equal(t, "42", req.StudentName)
	assert.False(t, req.SubmittedAt.IsZero())
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, "x.zip", req.Attachments[0].DisplayName)
}

func TestGradeReqFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"assignment_id": "a1",
		"student_id": "42",
		"student_name": "Jane Doe",
		"submitted_at": "2024-03-01T10:00:00Z",
		"work_dir": "/subm/jane",
		"spec_path": "/specs/chat.txt"
	}`), 0o644))

	req, err := parseRun(t, "--request", path, "--work-dir", "/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", req.WorkDir)
	assert.Equal(t, "Jane Doe", req.StudentName)
	assert.Equal(t, "/specs/chat.txt", req.SpecPath)
	assert.True(t, req.SubmittedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestGradeReqMissingFields(t *testing.T) {
	_, err := parseRun(t, "--student-id", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec file is required")
	assert.Contains(t, err.Error(), "--assignment is required")
	assert.Contains(t, err.Error(), "--work-dir is required")
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Upsert(ctx, "a1", pool.Submission{StudentID: "42", SubmittedAt: time.Now()}))
	require.NoError(t, store.Upsert(ctx, "a1", pool.Submission{StudentID: "7", SubmittedAt: time.Now()}))
	require.NoError(t, deactivate(ctx, store, "a1", "42"))

	others, err := store.OtherActive(ctx, "a1", "7")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestClosersRunInReverse(t *testing.T) {
	var order []int
	var cl closers
	for i := range 3 {
		cl.add(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, cl.close(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)
}
