package api_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/disttester/api"
	"github.com/programme-lv/disttester/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeReqSubject(t *testing.T) {
	raw := `{
		"assignment_id": "a1",
		"student_id": "42",
		"student_name": "Jane Doe",
		"submitted_at": "2024-03-01T10:00:00Z",
		"attachments": [{"display_name": "chat.zip", "url": "s3://bucket/chat.zip"}],
		"work_dir": "/subm/jane",
		"spec_path": "/specs/chat.txt"
	}`
	var req api.GradeReq
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	subj := req.Subject()
	assert.Equal(t, "42", subj.StudentID)
	assert.Equal(t, "Jane Doe", subj.StudentName)
	assert.Equal(t, "/subm/jane", subj.WorkDir)
	assert.True(t, subj.SubmittedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	require.Len(t, subj.Attachments, 1)
	assert.Equal(t, "s3://bucket/chat.zip", subj.Attachments[0].URL)
}

func TestNewGradeRes(t *testing.T) {
	id := uuid.New()
	res := &orchestrator.Result{
		RunID:         id,
		Passed:        true,
		Homogeneous:   orchestrator.OutcomePassed,
		Heterogeneous: orchestrator.OutcomeWaiting,
		Log:           "Running Distributed Tests...\n",
	}

	out := api.NewGradeRes(res, nil)
	assert.Equal(t, id.String(), out.RunID)
	assert.True(t, out.Passed)
	assert.Equal(t, "waiting", out.Heterogeneous)
	assert.Nil(t, out.Error)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"error"`)

	aborted := api.NewGradeRes(res, errors.New("PORT_3 is out of range"))
	assert.False(t, aborted.Passed)
	require.NotNil(t, aborted.Error)
	assert.Equal(t, "PORT_3 is out of range", *aborted.Error)
}
