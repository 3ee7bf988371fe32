package graph

import (
	"fmt"
	"strings"
)

// RangeViolation reports a numeric field outside its declared domain.
// Values are never clamped: a violation means the producer is broken.
type RangeViolation struct {
	Field string
	Value float64
	Min   float64
	Max   float64 // +Inf when unbounded
	// Exclusive marks a strict lower bound (e.g. count > 0).
	Exclusive bool
}

func (e *RangeViolation) Error() string {
	lower := "["
	if e.Exclusive {
		lower = "("
	}
	return fmt.Sprintf("%s: %v outside %s%v, %v]", e.Field, e.Value, lower, e.Min, e.Max)
}

// SchemaError lists every structural problem found in a dataset.
// A dataset carrying a SchemaError must not be rendered.
type SchemaError struct {
	Problems []error
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return "graph: invalid dataset: " + e.Problems[0].Error()
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("graph: invalid dataset (%d problems): %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is / errors.As.
func (e *SchemaError) Unwrap() []error {
	return e.Problems
}

// RangeViolations returns the numeric-domain problems only.
func (e *SchemaError) RangeViolations() []*RangeViolation {
	var out []*RangeViolation
	for _, p := range e.Problems {
		if rv, ok := p.(*RangeViolation); ok {
			out = append(out, rv)
		}
	}
	return out
}
