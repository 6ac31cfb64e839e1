package api

import (
	"github.com/programme-lv/disttester/internal/orchestrator"
	"github.com/programme-lv/disttester/internal/pool"
)

func (r GradeReq) Subject() orchestrator.Subject {
	attachments := make([]pool.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, pool.Attachment{DisplayName: a.DisplayName, URL: a.URL})
	}
	return orchestrator.Subject{
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		SubmittedAt:  r.SubmittedAt,
		Attachments:  attachments,
		WorkDir:      r.WorkDir,
	}
}

// NewGradeRes converts the outcome of Engine.Grade. res may be nil when err
// is set.
func NewGradeRes(res *orchestrator.Result, err error) GradeRes {
	var out GradeRes
	if res != nil {
		out = GradeRes{
			RunID:         res.RunID.String(),
			Passed:        res.Passed,
			Homogeneous:   string(res.Homogeneous),
			Heterogeneous: string(res.Heterogeneous),
			Log:           res.Log,
		}
	}
	if err != nil {
		msg := err.Error()
		out.Error = &msg
		out.Passed = false
	}
	return out
}
