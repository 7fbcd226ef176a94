package runloop

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors fail the whole request with no partial execution. Every
// other failure in the loop degrades locally and is never surfaced as an
// error from Run.

// CycleError reports that a tool execution plan contains a dependency cycle.
// Remaining lists the call ids the topological sort could not order.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tool plan contains a dependency cycle involving: %s",
		strings.Join(e.Remaining, ", "))
}

// UnknownDependencyError reports a tool call that depends on an id not
// present in the plan.
type UnknownDependencyError struct {
	CallID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("tool call %q depends on unknown call %q", e.CallID, e.Dependency)
}

// DuplicateCallError reports a second tool call added with an id already in
// the plan.
type DuplicateCallError struct {
	CallID string
}

func (e *DuplicateCallError) Error() string {
	return fmt.Sprintf("tool call id %q already present in plan", e.CallID)
}

// IsStructural reports whether err is a structural plan error: the only
// class of error that fails a request outright.
func IsStructural(err error) bool {
	var cycle *CycleError
	var unknown *UnknownDependencyError
	var dup *DuplicateCallError
	return errors.As(err, &cycle) || errors.As(err, &unknown) || errors.As(err, &dup)
}
