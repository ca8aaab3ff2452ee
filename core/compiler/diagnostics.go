package compiler

import "github.com/dipeo/dipeo-core/core"

// Severity, Phase and Diagnostic are defined in package core (see
// core/diagnostic.go) so that core.CompilationError can carry a diagnostics
// list without an import cycle between core and core/compiler. This package
// aliases them under their original names so call sites here read exactly
// as if they were declared locally.
type (
	Severity   = core.Severity
	Phase      = core.Phase
	Diagnostic = core.Diagnostic
)

const (
	SeverityError   = core.SeverityError
	SeverityWarning = core.SeverityWarning
	SeverityInfo    = core.SeverityInfo

	PhaseResolve  = core.PhaseResolve
	PhaseBind     = core.PhaseBind
	PhaseValidate = core.PhaseValidate
	PhaseIndex    = core.PhaseIndex
)
