package stores

import "time"

// Run is one recorded reconciliation.
type Run struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	Step        string `json:"step"`
	CheckOnly   bool   `json:"check_only"`
	SpecPresent bool   `json:"spec_present"`
	Changed     bool   `json:"changed"`
	Failed      bool   `json:"failed"`
	IsValidEnv  bool   `json:"is_valid_env"`
	ReturnCode  int    `json:"returncode"`

	// ResolvedPrefix is the prefix reported in the result.
	ResolvedPrefix string `json:"resolved_prefix,omitempty"`

	ErrorClass  string     `json:"error_class,omitempty"`
	Msg         string     `json:"msg,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Commands    []*Command `json:"commands,omitempty"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Command is one package manager invocation within a run.
type Command struct {
	RunID       string        `json:"run_id"`
	Seq         int           `json:"seq"`
	Argv        []string      `json:"argv"`
	ReturnCode  int           `json:"returncode"`
	Duration    time.Duration `json:"duration"`
	LaunchError string        `json:"launch_error,omitempty"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Name   string
	Prefix string
	Failed *bool
	Limit  int
}
