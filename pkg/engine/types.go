package engine

import (
	"encoding/json"

	"github.com/openfroyo/condaenv/pkg/conda"
)

// Params are the invocation parameters of one reconciliation.
type Params struct {
	// Spec is the desired environment document. Empty means inspect only.
	Spec map[string]interface{} `json:"spec,omitempty" yaml:"spec,omitempty"`

	// Name selects the environment by name. Mutually exclusive with Prefix.
	Name string `json:"name,omitempty" yaml:"name,omitempty" validate:"excluded_with=Prefix"`

	// Prefix selects the environment by path. Mutually exclusive with Name.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty" validate:"excluded_with=Name"`

	// Executable is the conda-compatible executable.
	Executable string `json:"conda_exe,omitempty" yaml:"conda_exe,omitempty"`

	// CheckOnly turns every create/update into a dry run.
	CheckOnly bool `json:"check_mode,omitempty" yaml:"check_mode,omitempty"`

	// KeepSpecFile leaves the staged spec file in place after the run.
	KeepSpecFile bool `json:"keep_spec_file,omitempty" yaml:"keep_spec_file,omitempty"`
}

// Identity returns the environment selector.
func (p *Params) Identity() conda.Identity {
	return conda.Identity{Name: p.Name, Prefix: p.Prefix}
}

// SpecPresent reports whether a non-empty spec was given.
func (p *Params) SpecPresent() bool {
	return len(p.Spec) > 0
}

// Result is the aggregate reported to the caller.
type Result struct {
	Changed      bool              `json:"changed"`
	Failed       bool              `json:"failed"`
	IsValidEnv   bool              `json:"is_valid_env"`
	SpecFilePath string            `json:"spec_file_path,omitempty"`
	Cmd          []string          `json:"cmd"`
	PackageList  []json.RawMessage `json:"package_list"`
	Actions      json.RawMessage   `json:"actions"`
	Prefix       string            `json:"prefix"`
	ReturnCode   int               `json:"returncode"`
	Msg          string            `json:"msg,omitempty"`

	// RunID identifies the run in logs, traces and the ledger.
	RunID string `json:"-"`

	// Step is the planned step.
	Step Step `json:"-"`
}

// Outcome labels the result for metrics and the ledger.
func (r *Result) Outcome() string {
	switch {
	case r.Failed:
		return "failed"
	case r.Changed:
		return "changed"
	default:
		return "unchanged"
	}
}
