package threshold

import (
	"fmt"
)

// InvalidInputError reports a case field that cannot be evaluated.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s (got %s)", e.Field, e.Reason, e.Value)
}
