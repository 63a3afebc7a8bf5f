package engine

import "github.com/openfroyo/condaenv/pkg/conda"

// Step is the action a run takes after inspection.
type Step string

const (
	// StepUpdate runs env update with the spec on an existing environment.
	StepUpdate Step = "update"

	// StepCreate runs env create with the spec.
	StepCreate Step = "create"

	// StepPrefixGiven reports the given prefix without running anything else.
	StepPrefixGiven Step = "prefix-given"

	// StepProbePrefix reads the prefix of a valid named environment from `run env`.
	StepProbePrefix Step = "probe-prefix"

	// StepDryRunPrefix asks a dry-run create where the environment would live.
	StepDryRunPrefix Step = "dry-run-prefix"
)

// Mutating reports whether the step can change the environment.
func (s Step) Mutating() bool {
	return s == StepUpdate || s == StepCreate
}

// EnvSubcommand returns the env subcommand of a convergence step.
func (s Step) EnvSubcommand() conda.EnvSubcommand {
	if s == StepUpdate {
		return conda.EnvUpdate
	}
	return conda.EnvCreate
}

// Plan selects the step from the inspection result. It is pure.
func Plan(specPresent, isValidEnv bool, id conda.Identity) Step {
	if specPresent {
		if isValidEnv {
			return StepUpdate
		}
		return StepCreate
	}

	switch {
	case id.Prefix != "":
		return StepPrefixGiven
	case id.Name != "" && isValidEnv:
		return StepProbePrefix
	default:
		return StepDryRunPrefix
	}
}
