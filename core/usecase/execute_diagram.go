// Package usecase implements spec.md §4.12 (C12 Execute-Diagram Use
// Case): the top-level orchestration that compiles a diagram, initializes
// its ExecutionState, wires the metrics observer, runs the engine to
// completion, and reports the terminal status. It is grounded on
// _examples/original_source/dipeo/application/execution/use_cases/execute_diagram.py's
// compile -> initialize_execution_state -> subscribe metrics observer ->
// engine.execute -> poll-or-short-circuit flow.
//
// The Python use case is a generator racing an engine task against a
// status-poll task because its engine iterates asynchronously in the
// background. core/engine.Engine.Run is synchronous — it blocks until the
// execution reaches a terminal status — so there is nothing to race: by
// the time Run returns, state.Status is already terminal. The
// IsSubDiagram/IsBatchItem distinction from options.is_sub_diagram is kept
// only as metadata callers may use to decide whether to treat a result as
// a nested collection (spec.md §9 records this simplification).
package usecase

import (
	"context"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/engine"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/observe"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/store"
)

// ExecutionOptions mirrors the Python use case's options dict fields
// that this module actually consumes.
type ExecutionOptions struct {
	Variables         map[string]any
	Metadata          map[string]any
	ParentExecutionID string
	IsSubDiagram      bool
	IsBatchItem       bool
	BatchIndex        int
	BatchTotal        int
}

// ExecuteDiagramUseCase wires a compiled diagram through one Engine.Run
// call, handling compilation failure, state initialization, and
// idempotent metrics-observer subscription.
type ExecuteDiagramUseCase struct {
	handlers       dispatch.HandlerRegistry
	bus            *event.Bus
	store          *store.Store
	metrics        *observe.MetricsObserver
	services       *registry.Registry
	dispatcherOpts []dispatch.Option
}

// New constructs an ExecuteDiagramUseCase. services is the root Service
// Registry; every call to Execute runs against a fresh child of it so
// concurrent executions sharing one root registry never see each other's
// per-run Diagram/ExecutionCtx entries (spec.md §4.11, CreateChild's
// copy-on-write isolation).
func New(handlers dispatch.HandlerRegistry, bus *event.Bus, st *store.Store, metrics *observe.MetricsObserver, services *registry.Registry, dispatcherOpts ...dispatch.Option) *ExecuteDiagramUseCase {
	if services == nil {
		services = registry.New()
	}
	return &ExecuteDiagramUseCase{
		handlers:       handlers,
		bus:            bus,
		store:          st,
		metrics:        metrics,
		services:       services,
		dispatcherOpts: dispatcherOpts,
	}
}

// Execute compiles diagram, initializes its ExecutionState under
// executionID, subscribes the metrics observer, and runs the engine to
// completion. The returned ExecutionState is the live pointer the store
// and engine both mutated; its Status is always terminal by the time
// Execute returns (spec.md §4.12 step 5), whether or not Run itself
// returned an error.
func (uc *ExecuteDiagramUseCase) Execute(ctx context.Context, executionID string, diagram core.Diagram, opts ExecutionOptions, progress func(engine.StepProgress), engineOpts ...engine.Option) (*core.ExecutionState, error) {
	compiled, compileErr := compiler.Compile(diagram)
	if compileErr != nil {
		state := uc.store.InitializeState(ctx, executionID, diagram.ID, opts.Variables, opts.Metadata)
		state.Status = core.ExecFailed
		state.Error = compileErr.Error()
		uc.bus.Publish(ctx, event.Event{
			Type:      event.ExecutionError,
			Scope:     event.Scope{ExecutionID: executionID},
			Payload:   event.ExecutionErrorPayload{Kind: "compilation", Message: compileErr.Error()},
			Timestamp: time.Now(),
		})
		return state, compileErr
	}

	state := uc.store.InitializeState(ctx, executionID, diagram.ID, opts.Variables, opts.Metadata)

	if uc.metrics != nil {
		uc.metrics.Subscribe(uc.bus, executionID)
	}

	execServices := uc.services.CreateChild()
	registry.Register(execServices, registry.EventBus, any(uc.bus))
	disp := dispatch.New(uc.handlers, uc.bus, uc.dispatcherOpts...)
	eng := engine.New(compiled, disp, uc.bus, execServices, engineOpts...)

	runErr := eng.Run(ctx, state, progress)
	return state, runErr
}
