package core

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ExecutionIDPattern matches the execution_id shape spec.md §6 requires:
// "exec_" followed by 32 lowercase hex digits.
var ExecutionIDPattern = regexp.MustCompile(`^exec_[0-9a-f]{32}$`)

// NewExecutionID generates a fresh execution_id in the "exec_" + 32-hex
// shape, using uuid v4's 32 hex digits with the dashes stripped.
func NewExecutionID() string {
	return "exec_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewDiagramID generates a diagram_id with the same shape convention, used
// when a diagram source carries no explicit ID of its own.
func NewDiagramID() string {
	return "diagram_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ValidExecutionID reports whether id matches ExecutionIDPattern.
func ValidExecutionID(id string) bool {
	return ExecutionIDPattern.MatchString(id)
}
