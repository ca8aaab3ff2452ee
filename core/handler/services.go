package handler

import (
	"context"

	"github.com/dipeo/dipeo-core/core/llm"
)

// CodeRunner executes a code_job node's inline code in the requested
// language against its resolved input variables. Concrete implementations
// (subprocess sandboxes, embedded interpreters, ...) are an external
// collaborator per spec.md §1; only this interface, bound to
// registry.CodeRunner, is in scope here.
type CodeRunner interface {
	Run(ctx context.Context, language, code string, vars map[string]any) (any, error)
}

// APIInvoker performs an api_job node's HTTP call. The concrete HTTP
// client is an external collaborator per spec.md §1.
type APIInvoker interface {
	Invoke(ctx context.Context, method, url string, headers map[string]string, body any) (statusCode int, respBody any, err error)
}

// FileSystem is the subset of filesystem operations hook/db file handlers
// need. The concrete adapter is an external collaborator per spec.md §1.
type FileSystem interface {
	Exists(path string) bool
	MkdirAll(path string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
}

// TemplateProcessor renders a template_job node's template string against
// its input variables.
type TemplateProcessor interface {
	Render(template string, vars map[string]any) (string, error)
}

// ProviderResolver picks an llm.Provider for a person_job node given the
// service/model/apiKeyRef the compiler bound against diagram.Persons
// metadata. Concrete implementations own provider construction and caching;
// individual LLM providers are an external collaborator per spec.md §1, so
// person_job only ever talks to the core/llm.Provider interface.
type ProviderResolver interface {
	Resolve(service, model, apiKeyRef string) (llm.Provider, error)
}
