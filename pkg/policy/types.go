package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/dynflow/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but do not block an export.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the export.
	SeverityError Severity = "error"

	// SeverityCritical blocks the export.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects the dataflow.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity applies to violations that do not set their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks the policies shipped with dynflow.
	Builtin bool `json:"-"`

	// Source is the file the policy was loaded from.
	Source string `json:"-"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Node is the id of the offending node, if the policy names one.
	Node string `json:"node,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Node != "" {
		return fmt.Sprintf("%s (node %s): %s", v.Policy, v.Node, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Policy, v.Message)
}

// Input is the document policies are evaluated against.
type Input struct {
	// Deployment is the deployment path relative to the command root.
	Deployment string `json:"deployment"`

	// Nodes holds the composed entries in their exported form.
	Nodes []interface{} `json:"nodes"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that do not block the export.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns a policy error listing every blocking violation, or nil when the
// dataflow is allowed.
func (r *Result) Err() error {
	if r == nil || r.Allowed {
		return nil
	}

	errs := make([]error, 0, len(r.Violations))
	for _, v := range r.Violations {
		errs = append(errs, errors.New(v.String()))
	}

	msg := fmt.Sprintf("dataflow rejected by %d policy violation", len(r.Violations))
	if len(r.Violations) != 1 {
		msg += "s"
	}
	return engine.NewPolicyError(msg, errors.Join(errs...))
}

// Summary renders a one-line description of the result.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d policies evaluated, %d violations, %d warnings",
		len(r.EvaluatedPolicies), len(r.Violations), len(r.Warnings))
}
