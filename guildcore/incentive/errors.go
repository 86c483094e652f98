// Package incentive holds the shared pieces of the fair incentive engine:
// the validation error taxonomy used by every engine package.
//
// Business-rule refusals (insufficient funds, unknown hold) live as sentinel
// errors in the package that owns the rule. A ValidationError always means the
// input was malformed and the operation was rejected before any state change.
package incentive

import "fmt"

// ValidationError reports malformed input. It is always safe to retry the
// operation after fixing the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
