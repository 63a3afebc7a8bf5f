package policy

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is logged but does not block the step.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the step.
	SeverityError Severity = "error"
)

// Blocking reports whether a violation of this severity denies the step.
func (s Severity) Blocking() bool {
	return s != SeverityWarning
}

// Policy is a Rego module whose `deny` set is evaluated before each mutating step.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Source is the file the policy was read from, empty for built-in policies.
	Source string `json:"source,omitempty"`
}
