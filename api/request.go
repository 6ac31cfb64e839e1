package api

import "time"

// GradeReq asks for one submission to be graded against a spec file.
type GradeReq struct {
	AssignmentID string       `json:"assignment_id"`
	StudentID    string       `json:"student_id"`
	StudentName  string       `json:"student_name"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	Attachments  []Attachment `json:"attachments"`

	// WorkDir holds the already unpacked submission.
	WorkDir string `json:"work_dir"`
	// SpecPath points to the test spec with the --DT-- section.
	SpecPath string `json:"spec_path"`
}

type Attachment struct {
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}
