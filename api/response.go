package api

// GradeRes is what `disttester run --json` prints.
type GradeRes struct {
	RunID         string `json:"run_id"`
	Passed        bool   `json:"passed"`
	Homogeneous   string `json:"homogeneous"`
	Heterogeneous string `json:"heterogeneous"`
	Log           string `json:"log"`

	// Error is set when the run was aborted by a configuration error.
	Error *string `json:"error,omitempty"`
}
