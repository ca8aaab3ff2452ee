package core

// Severity classifies a Diagnostic. Only Error diagnostics make a diagram
// compilation fail; Warning and Info are informational only.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Phase identifies which compilation phase produced a Diagnostic.
type Phase string

const (
	PhaseResolve  Phase = "resolve"
	PhaseBind     Phase = "bind"
	PhaseValidate Phase = "validate"
	PhaseIndex    Phase = "index"
)

// Diagnostic is one finding from a diagram compilation phase. It lives in
// core, not core/compiler, so that CompilationError (also core) can carry a
// diagnostics list without compiler importing core importing compiler.
type Diagnostic struct {
	Phase    Phase
	Severity Severity
	Message  string
	NodeID   NodeID
}
