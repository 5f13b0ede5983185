// Package validate checks classified entities against their rules and
// produces violations. Checks run independently, so one entity can
// yield several violations, and validation never stops at the first
// finding.
package validate

import (
	"github.com/c360studio/conformity/ruleset"
	"github.com/c360studio/conformity/scan"
)

// Reason is the stable machine-readable code attached to a violation.
type Reason string

const (
	// ReasonBadCasing flags a name that does not follow the required
	// casing convention.
	ReasonBadCasing Reason = "BadCasing"
	// ReasonBadPlurality flags a scope name with the wrong grammatical
	// number.
	ReasonBadPlurality Reason = "BadPlurality"
	// ReasonMissingPrefix flags a variable that does not carry its
	// scope's namespace prefix.
	ReasonMissingPrefix Reason = "MissingPrefix"
	// ReasonWrongLocation flags an entity found outside the location
	// its rule prescribes.
	ReasonWrongLocation Reason = "WrongLocation"
	// ReasonMissingVarsDoc flags a role that fails the variable
	// documentation requirement.
	ReasonMissingVarsDoc Reason = "MissingRequiredVarsDoc"
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	return string(r)
}

// IsValid checks if the reason is one of the known codes.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonBadCasing, ReasonBadPlurality, ReasonMissingPrefix,
		ReasonWrongLocation, ReasonMissingVarsDoc:
		return true
	}
	return false
}

// Violation is a single rule breach found during validation.
type Violation struct {
	// Entity is the offending entity.
	Entity scan.Entity `json:"entity"`
	// Kind is the rule kind the entity was validated under.
	Kind ruleset.Kind `json:"kind"`
	// Reason is the machine-readable code for the breach.
	Reason Reason `json:"reason"`
	// Message is a human-readable description including the expected
	// form.
	Message string `json:"message"`
}
