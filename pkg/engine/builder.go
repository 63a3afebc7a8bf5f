package engine

import (
	"encoding/json"

	"github.com/openfroyo/condaenv/pkg/conda"
)

// Builder merges stage outputs into a Result in call order. Fields shared between stages
// (cmd, returncode, prefix) take the value of the latest stage that reports them.
type Builder struct {
	result Result
}

// NewBuilder returns a Builder with the always-present fields initialized.
func NewBuilder(runID string) *Builder {
	return &Builder{result: Result{
		RunID:       runID,
		Cmd:         []string{},
		PackageList: []json.RawMessage{},
	}}
}

// ApplySnapshot merges the inspection result.
func (b *Builder) ApplySnapshot(s *conda.Snapshot) *Builder {
	b.result.Cmd = s.Cmd
	b.result.PackageList = s.Packages
	b.result.ReturnCode = s.ReturnCode
	b.result.IsValidEnv = s.IsValid
	b.result.Changed = false
	b.result.Failed = false
	return b
}

// ApplyConvergence merges an env create/update outcome. A prefix is only taken when the
// tool reported one.
func (b *Builder) ApplyConvergence(o *conda.Outcome) *Builder {
	b.result.Cmd = o.Cmd
	b.result.ReturnCode = o.ReturnCode
	b.result.Actions = o.Actions
	b.result.Changed = o.Changed
	b.result.Failed = o.Failed()
	if o.Prefix != "" {
		b.result.Prefix = o.Prefix
	}
	if o.Message != "" {
		b.result.Msg = o.Message
	}
	return b
}

// ApplyPrefixDiscovery merges a dry-run create used only to learn the prefix. Its actions
// never mark the run changed.
func (b *Builder) ApplyPrefixDiscovery(o *conda.Outcome) *Builder {
	b.result.Cmd = o.Cmd
	b.result.ReturnCode = o.ReturnCode
	b.result.Prefix = o.Prefix
	return b
}

// ApplyProbe merges a successful `run env` probe.
func (b *Builder) ApplyProbe(p *conda.Probe) *Builder {
	b.result.Cmd = p.Cmd
	b.result.ReturnCode = p.ReturnCode
	b.result.Prefix = p.Prefix
	return b
}

// SetStep records the planned step.
func (b *Builder) SetStep(s Step) *Builder {
	b.result.Step = s
	return b
}

// SetPrefix sets the resolved prefix.
func (b *Builder) SetPrefix(prefix string) *Builder {
	b.result.Prefix = prefix
	return b
}

// SetSpecFile records the staged spec file path.
func (b *Builder) SetSpecFile(path string) *Builder {
	b.result.SpecFilePath = path
	return b
}

// SetCommand records the last command, e.g. one that failed to start.
func (b *Builder) SetCommand(argv []string) *Builder {
	b.result.Cmd = argv
	return b
}

// SetReturnCode records the exit status of the last command.
func (b *Builder) SetReturnCode(code int) *Builder {
	b.result.ReturnCode = code
	return b
}

// SetMsg records an informational message without failing the result.
func (b *Builder) SetMsg(msg string) *Builder {
	b.result.Msg = msg
	return b
}

// Fail marks the result failed with msg, keeping every accumulated field.
func (b *Builder) Fail(msg string) *Builder {
	b.result.Failed = true
	b.result.Msg = msg
	return b
}

// Result returns a copy of the current aggregate.
func (b *Builder) Result() *Result {
	r := b.result
	return &r
}
