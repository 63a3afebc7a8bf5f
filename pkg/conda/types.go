package conda

import (
	"encoding/json"
	"fmt"
)

// DefaultExecutable is used when no executable is configured.
const DefaultExecutable = "conda"

// PrefixVariable is the variable `run ... env` prints with the environment's root.
const PrefixVariable = "CONDA_PREFIX"

// EnvSubcommand is the convergence action taken with a spec file.
type EnvSubcommand string

const (
	// EnvCreate creates a new environment from a spec file.
	EnvCreate EnvSubcommand = "create"

	// EnvUpdate updates an existing environment from a spec file.
	EnvUpdate EnvSubcommand = "update"
)

// Identity selects an environment by name or by prefix. Both empty addresses the default
// environment. Callers must not set both.
type Identity struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Flags returns the selector arguments, prefix first.
func (id Identity) Flags() []string {
	var flags []string
	if id.Prefix != "" {
		flags = append(flags, "--prefix", id.Prefix)
	}
	if id.Name != "" {
		flags = append(flags, "--name", id.Name)
	}
	return flags
}

func (id Identity) String() string {
	switch {
	case id.Prefix != "" && id.Name != "":
		return fmt.Sprintf("prefix=%s name=%s", id.Prefix, id.Name)
	case id.Prefix != "":
		return "prefix=" + id.Prefix
	case id.Name != "":
		return "name=" + id.Name
	default:
		return "default"
	}
}

// Snapshot is the result of inspecting an identity.
type Snapshot struct {
	// Cmd is the list command that was run.
	Cmd []string

	// Packages holds the installed package records as reported by the tool.
	Packages []json.RawMessage

	// IsValid is true when the list command exited zero with at least one package.
	IsValid bool

	// ReturnCode is the exit status of the list command.
	ReturnCode int
}

// Outcome is the normalized output of env create, env update or create.
type Outcome struct {
	Cmd        []string
	ReturnCode int

	// Actions is the raw "actions" value, nil when absent or null.
	Actions json.RawMessage

	// Prefix is the environment root the tool reported, empty when absent.
	Prefix string

	// Changed is true when Actions is non-empty.
	Changed bool

	// Success is the tool's "success" field, true when absent.
	Success bool

	// Message carries the tool's "message" or "error" field.
	Message string
}

// Failed reports whether the command did not succeed. The exit code is authoritative over a
// missing "success" field.
func (o *Outcome) Failed() bool {
	return !o.Success || o.ReturnCode != 0
}

// Probe is the result of running `env` inside an environment.
type Probe struct {
	Cmd        []string
	ReturnCode int
	Prefix     string
	Env        map[string]string
}

// Failed reports whether the probe exited non-zero.
func (p *Probe) Failed() bool {
	return p.ReturnCode != 0
}
