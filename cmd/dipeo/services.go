package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/template"

	"github.com/dipeo/dipeo-core/core/llm"
)

// osFileSystem is the default handler.FileSystem: a thin pass-through to
// the os package, the concrete adapter spec.md §1 treats as an external
// collaborator behind the FileSystem interface.
type osFileSystem struct{}

func (osFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (osFileSystem) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func (osFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// httpInvoker is the default handler.APIInvoker, a thin wrapper over
// net/http.Client.
type httpInvoker struct {
	client *http.Client
}

func newHTTPInvoker() *httpInvoker {
	return &httpInvoker{client: &http.Client{}}
}

func (h *httpInvoker) Invoke(ctx context.Context, method, url string, headers map[string]string, body any) (int, any, error) {
	var reader io.Reader
	if s, ok := body.(string); ok {
		reader = strings.NewReader(s)
	} else if b, ok := body.([]byte); ok {
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, string(respBody), nil
}

// interpreterFor maps a code_job node's declared language to the
// subprocess that runs it.
func interpreterFor(language string) (string, []string) {
	switch strings.ToLower(language) {
	case "python", "python3":
		return "python3", []string{"-c"}
	case "javascript", "js", "node":
		return "node", []string{"-e"}
	case "bash", "sh", "shell":
		return "sh", []string{"-c"}
	default:
		return "sh", []string{"-c"}
	}
}

// subprocessCodeRunner is the default handler.CodeRunner: runs the node's
// inline code as a subprocess in the declared language's interpreter,
// feeding input variables in as environment variables (DIPEO_VAR_<KEY>)
// since a subprocess has no other channel into the parent's Go values.
type subprocessCodeRunner struct{}

func (subprocessCodeRunner) Run(ctx context.Context, language, code string, vars map[string]any) (any, error) {
	bin, prefixArgs := interpreterFor(language)
	cmd := exec.CommandContext(ctx, bin, append(prefixArgs, code)...)
	cmd.Env = os.Environ()
	for k, v := range vars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("DIPEO_VAR_%s=%v", strings.ToUpper(k), v))
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("code_job: %s: %w: %s", bin, err, out)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// textTemplateProcessor is the default handler.TemplateProcessor, built on
// the standard library's text/template.
type textTemplateProcessor struct{}

func (textTemplateProcessor) Render(tmpl string, vars map[string]any) (string, error) {
	t, err := template.New("template_job").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// envProviderResolver implements handler.ProviderResolver: it builds and
// caches an llm.Provider per (service, model) pair. When
// DIPEO_<SERVICE>_API_KEY is set it is used as the API key in place of
// apiKeyRef; otherwise apiKeyRef is passed through as the key. The
// ApiKeyService spec.md §6 lists separately is an external
// collaborator this CLI does not implement.
type envProviderResolver struct {
	mu        sync.Mutex
	providers map[string]llm.Provider
}

func newEnvProviderResolver() *envProviderResolver {
	return &envProviderResolver{providers: make(map[string]llm.Provider)}
}

func (r *envProviderResolver) Resolve(service, model, apiKeyRef string) (llm.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cacheKey := service + "|" + model
	if p, ok := r.providers[cacheKey]; ok {
		return p, nil
	}

	apiKey := apiKeyRef
	if envKey := os.Getenv("DIPEO_" + strings.ToUpper(service) + "_API_KEY"); envKey != "" {
		apiKey = envKey
	}

	var provider llm.Provider
	switch strings.ToLower(service) {
	case "anthropic", "claude":
		provider = llm.NewAnthropicProvider(apiKey, model)
	case "openai", "gpt":
		provider = llm.NewOpenAIProvider(apiKey, model)
	case "google", "gemini":
		provider = llm.NewGoogleProvider(apiKey, model)
	case "mock", "":
		provider = &llm.MockProvider{Responses: []llm.ChatOut{{Text: "mock response"}}}
	default:
		return nil, fmt.Errorf("envProviderResolver: unknown service %q", service)
	}

	r.providers[cacheKey] = provider
	return provider, nil
}
