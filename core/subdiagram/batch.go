package subdiagram

import (
	"context"
	"sync"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/usecase"
)

// DefaultBatchMaxConcurrent mirrors the Python batch executor's
// DEFAULT_MAX_CONCURRENT. It is deliberately distinct from
// dispatch.DefaultMaxConcurrent, which bounds node dispatch within one
// engine run rather than batch items across many nested runs.
const DefaultBatchMaxConcurrent = 10

// ItemError captures one batch item's failure, grounded on base_executor.py's
// {index, error, error_type, item} error record shape.
type ItemError struct {
	Index     int
	Error     string
	ErrorType string
	Item      any
}

type batchConfig struct {
	inputKey      string
	parallel      bool
	maxConcurrent int
	outputMode    string
	resultKey     string
}

func getBatchConfig(node *compiler.ExecutableNode) batchConfig {
	cfg := batchConfig{
		inputKey:      "items",
		parallel:      true,
		maxConcurrent: DefaultBatchMaxConcurrent,
		outputMode:    "pure_list",
		resultKey:     "results",
	}
	if v, ok := node.Config["batch_input_key"].(string); ok && v != "" {
		cfg.inputKey = v
	}
	if v, ok := node.Config["batch_parallel"].(bool); ok {
		cfg.parallel = v
	}
	if v, ok := node.Config["max_concurrent"].(int); ok && v > 0 {
		cfg.maxConcurrent = v
	}
	if v, ok := node.Config["output_mode"].(string); ok && v != "" {
		cfg.outputMode = v
	}
	if v, ok := node.Config["result_key"].(string); ok && v != "" {
		cfg.resultKey = v
	}
	return cfg
}

// extractBatchItems resolves the batch items list from the node's inputs,
// following batch_executor.py's three-level fallback: a direct handle
// match on key, a nested lookup inside the "default" handle's object body,
// or (when key itself is "default") the default handle's body taken
// whole. The inner nested-key loop in the original is redundant with the
// direct map lookup that precedes it; it is preserved here only for
// behavioral parity and is flagged in DESIGN.md as a v2 simplification
// candidate.
func extractBatchItems(inputs map[string]core.Envelope, key string) []any {
	found, ok := findBatchItems(inputs, key)
	if !ok {
		return nil
	}
	if list, ok := found.([]any); ok {
		return list
	}
	return []any{found}
}

func findBatchItems(inputs map[string]core.Envelope, key string) (any, bool) {
	if env, ok := inputs[key]; ok {
		return env.Body, true
	}
	def, ok := inputs["default"]
	if !ok {
		return nil, false
	}
	if key == "default" {
		return def.Body, true
	}
	m, ok := def.Body.(map[string]any)
	if !ok {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if k == key {
			return v, true
		}
	}
	return nil, false
}

// itemVariables builds one batch item's initial Variables map, following
// _create_item_inputs: when batch_input_key is "default" and the item is
// itself an object its keys spread directly into Variables, otherwise the
// item is passed under the "default" handle. Every other input handle
// from the parent node (aside from the batch key itself) is forwarded
// unchanged so sibling inputs remain visible to the nested diagram.
func itemVariables(item any, inputKey string, index, total int, inputs map[string]core.Envelope) map[string]any {
	vars := make(map[string]any)
	if inputKey == "default" {
		if m, ok := item.(map[string]any); ok {
			for k, v := range m {
				vars[k] = v
			}
		} else {
			vars["default"] = item
		}
	} else {
		vars["default"] = item
	}
	vars["_batch_index"] = index
	vars["_batch_total"] = total

	for handle, env := range inputs {
		if handle == inputKey || handle == "default" {
			continue
		}
		vars[handle] = env.Body
	}
	return vars
}

func emptyBatchOutput(node *compiler.ExecutableNode, cfg batchConfig) core.Envelope {
	return buildBatchOutput(node, cfg, 0, nil, nil)
}

func buildBatchOutput(node *compiler.ExecutableNode, cfg batchConfig, totalItems int, results []any, errs []ItemError) core.Envelope {
	if results == nil {
		results = []any{}
	}

	if cfg.outputMode == "rich_object" {
		resultKey := cfg.resultKey
		if resultKey == "" {
			resultKey = "results"
		}
		body := map[string]any{
			"total_items": totalItems,
			"successful":  len(results),
			"failed":      len(errs),
			resultKey:     results,
			"errors":      errs,
		}
		return core.NewEnvelope(node.ID, body).
			WithMeta("batch_parallel", cfg.parallel).
			WithMeta("diagram", diagramLabel(node))
	}

	env := core.NewEnvelope(node.ID, results).
		WithMeta("total_items", totalItems).
		WithMeta("successful", len(results)).
		WithMeta("failed", len(errs)).
		WithMeta("batch_parallel", cfg.parallel).
		WithMeta("diagram", diagramLabel(node))
	if len(errs) > 0 {
		env = env.WithMeta("errors", errs)
	}
	return env
}

// ExecuteBatch fans a sub_diagram node configured for batch mode out over
// every item in its batch input, running each item as an isolated nested
// execution (its own sub-execution-id and Variables), optionally in
// parallel bounded by max_concurrent, and assembles one Envelope in either
// pure_list (body is the bare results array) or rich_object (body wraps
// counts, results, and per-item errors) shape.
func ExecuteBatch(ctx context.Context, uc *usecase.ExecuteDiagramUseCase, loader Loader, node *compiler.ExecutableNode, inputs map[string]core.Envelope, parentExecutionID string) core.Envelope {
	cfg := getBatchConfig(node)
	items := extractBatchItems(inputs, cfg.inputKey)
	if len(items) == 0 {
		return emptyBatchOutput(node, cfg)
	}

	name, _ := node.Config["diagram_name"].(string)
	format, _ := node.Config["diagram_format"].(string)
	diagram, err := loader.Load(ctx, name, format, inlineDiagramData(node))
	if err != nil {
		return loadErrorEnvelope(node, err)
	}
	compiled, compileErr := compiler.Compile(diagram)
	if compileErr != nil {
		return loadErrorEnvelope(node, compileErr)
	}

	maxConcurrent := cfg.maxConcurrent
	if !cfg.parallel {
		maxConcurrent = 1
	}
	sem := dispatch.NewBatchSemaphore(maxConcurrent)

	results := make([]any, len(items))
	ok := make([]bool, len(items))
	var errsMu sync.Mutex
	var errs []ItemError

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vars := itemVariables(item, cfg.inputKey, i, len(items), inputs)
			subExecutionID := newSubExecutionID(parentExecutionID, "batch")

			opts := usecase.ExecutionOptions{
				Variables: vars,
				Metadata: map[string]any{
					"is_sub_diagram":      true,
					"is_batch_item":       true,
					"parent_execution_id": parentExecutionID,
					"batch_index":         i,
					"batch_total":         len(items),
				},
				ParentExecutionID: parentExecutionID,
				IsSubDiagram:      true,
				IsBatchItem:       true,
				BatchIndex:        i,
				BatchTotal:        len(items),
			}

			state, runErr := uc.Execute(ctx, subExecutionID, diagram, opts, nil)
			if runErr != nil || state.Status == core.ExecFailed || state.Status == core.ExecAborted {
				msg := state.Error
				if msg == "" && runErr != nil {
					msg = runErr.Error()
				}
				errsMu.Lock()
				errs = append(errs, ItemError{Index: i, Error: msg, ErrorType: "NodeExecutionError", Item: item})
				errsMu.Unlock()
				return
			}

			results[i] = mapOutput(compiled, state)
			ok[i] = true
		}(i, item)
	}
	wg.Wait()

	finalResults := make([]any, 0, len(items))
	for i := range items {
		if ok[i] {
			finalResults = append(finalResults, results[i])
		}
	}

	return buildBatchOutput(node, cfg, len(items), finalResults, errs)
}
