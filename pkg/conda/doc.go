// Package conda drives a conda-compatible executable (conda, mamba, micromamba) through its
// JSON command-line interface.
//
// The package knows the argument vectors of the four commands the reconciler needs:
//
//	list --json [--prefix P] [--name N]
//	env create|update -y --json --file F [--prefix P] [--name N] [--dry-run]
//	create -y --json [--prefix P] [--name N] [--dry-run]
//	run [--prefix P] [--name N] env
//
// and how to read their output. Output parsing never fails: malformed JSON is treated as an
// empty document and the exit code stays authoritative. Only a command that cannot be started
// at all is reported as an error (*LaunchError).
package conda
