package config

import (
	"fmt"
	"strings"

	"github.com/openfroyo/condaenv/pkg/engine"
)

// Params are the invocation parameters as an orchestrator hands them over.
type Params struct {
	engine.Params `yaml:",inline"`

	// SpecFile is read when Spec is not given inline.
	SpecFile string `json:"spec_file,omitempty" yaml:"spec_file,omitempty"`

	// Host runs the package manager over SSH instead of locally.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// Settings are the operator defaults read from the settings file.
type Settings struct {
	// Executable is the default package manager executable.
	Executable string `toml:"executable"`

	// Policies are policy references (files, directories or builtin:<name>) applied to every run.
	Policies []string `toml:"policies"`

	Log     LogSettings     `toml:"log"`
	Ledger  LedgerSettings  `toml:"ledger"`
	Metrics MetricsSettings `toml:"metrics"`
	Tracing TracingSettings `toml:"tracing"`
	SSH     SSHSettings     `toml:"ssh"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LedgerSettings configures the run ledger. An empty path disables it.
type LedgerSettings struct {
	Path string `toml:"path"`

	// RetentionDays prunes older runs after each recorded run. Zero keeps everything.
	RetentionDays int `toml:"retention_days"`
}

// MetricsSettings configures metrics output.
type MetricsSettings struct {
	// Textfile is written after each run for the node_exporter textfile collector.
	Textfile string `toml:"textfile"`

	// Listen serves /metrics while watching.
	Listen string `toml:"listen"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	Exporter     string            `toml:"exporter"`
	Endpoint     string            `toml:"endpoint"`
	Insecure     bool              `toml:"insecure"`
	SamplingRate float64           `toml:"sampling_rate"`
	Headers      map[string]string `toml:"headers"`
}

// SSHSettings are the defaults for remote runs.
type SSHSettings struct {
	User       string `toml:"user"`
	Port       int    `toml:"port"`
	KeyFile    string `toml:"key"`
	KnownHosts string `toml:"known_hosts"`

	// StrictHostKeyChecking defaults to true when unset.
	StrictHostKeyChecking *bool `toml:"strict_host_key_checking"`

	RemoteTempDir string `toml:"remote_temp_dir"`
}

// ValidationError describes one problem found in a spec document.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	default:
		return e.Message
	}
}

// SpecError is returned when a spec document cannot be loaded.
type SpecError struct {
	Source string
	Errors []ValidationError
}

func (e *SpecError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.String())
	}
	return fmt.Sprintf("invalid spec %s: %s", e.Source, strings.Join(msgs, "; "))
}
