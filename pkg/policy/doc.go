// Package policy gates mutating conda steps with Open Policy Agent Rego policies.
//
// A policy is a Rego module (v1 syntax) that defines a `deny` set in its package. Each
// entry is either a message string or an object with "message" and "severity":
//
//	package condaenv.guard
//
//	deny contains msg if {
//		input.action == "create"
//		not startswith(input.prefix, "/opt/envs/")
//		msg := "environments must live under /opt/envs"
//	}
//
// The input document carries the planned action ("create" or "update"), the environment
// name or prefix, the executable, is_valid_env, check_only and the spec.
//
// A file may declare its default severity in its header comment with "# severity: warning".
// Warnings are logged; any other severity denies the step. Built-in policies are referenced
// as "builtin:<name>".
package policy
