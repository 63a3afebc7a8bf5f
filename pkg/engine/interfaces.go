package engine

import (
	"context"
	"time"
)

// PolicyInput is the document a PolicyGate evaluates before a mutating step.
type PolicyInput struct {
	Action     string                 `json:"action"`
	Name       string                 `json:"name,omitempty"`
	Prefix     string                 `json:"prefix,omitempty"`
	Executable string                 `json:"executable"`
	IsValidEnv bool                   `json:"is_valid_env"`
	CheckOnly  bool                   `json:"check_only"`
	Spec       map[string]interface{} `json:"spec"`
}

// PolicyViolation is one deny message.
type PolicyViolation struct {
	Policy  string `json:"policy"`
	Message string `json:"message"`
}

// PolicyDecision is the result of a policy evaluation.
type PolicyDecision struct {
	Allowed    bool              `json:"allowed"`
	Violations []PolicyViolation `json:"violations,omitempty"`
}

// PolicyGate decides whether a mutating step may run.
type PolicyGate interface {
	Evaluate(ctx context.Context, input *PolicyInput) (*PolicyDecision, error)
}

// CommandRecord is one package manager command executed during a run.
type CommandRecord struct {
	Seq        int
	Argv       []string
	ReturnCode int
	Duration   time.Duration

	// LaunchError is set when the command could not be started.
	LaunchError string
}

// RunRecord describes a finished run for a Recorder.
type RunRecord struct {
	ID          string
	Params      Params
	Result      *Result
	ErrorClass  ErrorClass
	Commands    []CommandRecord
	StartedAt   time.Time
	CompletedAt time.Time
}

// Recorder persists finished runs. Recorded runs are never read back by reconciliation.
type Recorder interface {
	RecordRun(ctx context.Context, run *RunRecord) error
}
