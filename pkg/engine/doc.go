// Package engine decides and performs the convergence of one conda environment.
//
// A run follows a fixed sequence:
//
//	inspect -> plan -> {update | create | prefix-given | probe-prefix | dry-run-prefix} -> result
//
// Inspection always happens first because the plan depends on it. Plan is a pure function
// of (spec present, environment valid, identity). Builder merges each stage's output into
// one Result with last-writer-wins on cmd, returncode and prefix.
//
// Reconcile returns the Result together with a classified *EngineError on failure, so the
// caller gets the full diagnostic field set either way. Failure classes:
//
//   - launch: the executable could not be started or the spec file could not be staged
//   - tool: the executable reported failure during convergence
//   - inconsistent: a valid environment's prefix could not be probed
//   - input: invalid parameters (name and prefix both set)
//   - policy: a Rego policy denied the mutating step
//   - internal: a recovered panic
//
// Malformed JSON output is not an error; it is read as an empty document. Dry-run prefix
// discovery never fails a run: an unknown prefix is left empty and explained in msg.
//
// The staged spec file belongs to the run and is removed when the run ends unless
// Params.KeepSpecFile is set. Its path is reported in either case.
package engine
