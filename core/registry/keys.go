package registry

// Keys required by spec.md §6, mirrored one-for-one from
// _examples/original_source/dipeo/application/registry/keys.py's flat,
// package-level ServiceKey constant list. Consumers obtain services by
// typed key; there is no string-lookup escape hatch (spec.md §9, "Dynamic
// dispatch / string service lookups").
//
// The concrete types these keys carry (LLMService, FileSystem, ...) are
// interfaces defined by the packages that own the concern (core/llm,
// core/handler, core/store, core/event, core/compiler, ...); this package
// only needs `any` because Go generics cannot forward-declare an
// interface owned by a package that would otherwise import registry,
// creating a cycle. Call sites use registry.Resolve[T](reg, LLMService)
// with an explicit T that matches how the key was registered.
var (
	LLMService           = NewServiceKey[any]("llm_service")
	FileSystem           = NewServiceKey[any]("file_system")
	APIKeyService        = NewServiceKey[any]("api_key_service")
	StateStore           = NewServiceKey[any]("state_store")
	EventBus             = NewServiceKey[any]("event_bus")
	DiagramPort          = NewServiceKey[any]("diagram_port")
	APIInvoker           = NewServiceKey[any]("api_invoker")
	CodeRunner           = NewServiceKey[any]("code_runner")
	TemplateProcessor    = NewServiceKey[any]("template_processor")
	PromptBuilder        = NewServiceKey[any]("prompt_builder")
	ProviderRegistry     = NewServiceKey[any]("provider_registry")
	IntegratedAPIService = NewServiceKey[any]("integrated_api_service")

	// ExecutionOrchestrator carries the *usecase.ExecuteDiagramUseCase a
	// sub_diagram handler re-enters to run a nested execution, mirroring
	// original_source/dipeo/application/registry/keys.py's
	// EXECUTION_ORCHESTRATOR key. core/handler cannot import core/usecase's
	// concrete type here without a cycle (usecase would need handler's
	// HandlerRegistry), so it is carried as `any` like every other key and
	// asserted back to *usecase.ExecuteDiagramUseCase at the call site.
	ExecutionOrchestrator = NewServiceKey[any]("execution_orchestrator")

	// Execution-context keys, populated per run by the engine so handlers
	// and sub-diagram executors can reach the compiled diagram and
	// bookkeeping without threading extra parameters through every call.
	Diagram       = NewServiceKey[any]("diagram")
	ExecutionCtx  = NewServiceKey[any]("execution_context")
	NodeExecCounts = NewServiceKey[any]("node_exec_counts")
)
