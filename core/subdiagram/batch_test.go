package subdiagram

import (
	"context"
	"testing"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
)

func TestExtractBatchItemsDirectHandleMatch(t *testing.T) {
	inputs := map[string]core.Envelope{
		"items": core.NewEnvelope("n1", []any{"a", "b", "c"}),
	}
	items := extractBatchItems(inputs, "items")
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
}

func TestExtractBatchItemsNestedInsideDefault(t *testing.T) {
	inputs := map[string]core.Envelope{
		"default": core.NewEnvelope("n1", map[string]any{"rows": []any{1, 2}}),
	}
	items := extractBatchItems(inputs, "rows")
	if len(items) != 2 {
		t.Fatalf("expected 2 items from the nested default lookup, got %d", len(items))
	}
}

func TestExtractBatchItemsDefaultKeyUsesWholeDefaultBody(t *testing.T) {
	inputs := map[string]core.Envelope{
		"default": core.NewEnvelope("n1", []any{"x", "y"}),
	}
	items := extractBatchItems(inputs, "default")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestExtractBatchItemsWrapsNonListSingleValue(t *testing.T) {
	inputs := map[string]core.Envelope{
		"items": core.NewEnvelope("n1", "solo"),
	}
	items := extractBatchItems(inputs, "items")
	if len(items) != 1 || items[0] != "solo" {
		t.Fatalf("expected a single wrapped item, got %v", items)
	}
}

func TestItemVariablesSpreadsObjectItemsWhenKeyIsDefault(t *testing.T) {
	item := map[string]any{"name": "alice"}
	vars := itemVariables(item, "default", 2, 5, map[string]core.Envelope{})
	if vars["name"] != "alice" {
		t.Fatalf("expected item fields spread into vars, got %v", vars)
	}
	if vars["_batch_index"] != 2 || vars["_batch_total"] != 5 {
		t.Fatalf("expected batch index/total recorded, got %v", vars)
	}
}

func TestItemVariablesWrapsNonDefaultKeyUnderDefaultHandle(t *testing.T) {
	vars := itemVariables("row-value", "items", 0, 1, map[string]core.Envelope{})
	if vars["default"] != "row-value" {
		t.Fatalf("expected item wrapped under default, got %v", vars)
	}
}

func TestExecuteBatchRunsEveryItemAndCollectsResults(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{diagram: twoNodeDiagram()}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "batch1", Type: core.NodeSubDiagram}}
	inputs := map[string]core.Envelope{
		"items": core.NewEnvelope("n1", []any{"a", "b", "c"}),
	}

	env := ExecuteBatch(context.Background(), uc, loader, node, inputs, "parent-1")

	results, ok := env.Body.([]any)
	if !ok {
		t.Fatalf("expected a pure_list body, got %T", env.Body)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if env.Meta["successful"] != 3 || env.Meta["failed"] != 0 {
		t.Fatalf("expected 3 successful and 0 failed, got %v/%v", env.Meta["successful"], env.Meta["failed"])
	}
}

func TestExecuteBatchRichObjectModeWrapsCountsAndErrors(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{diagram: twoNodeDiagram()}
	node := &compiler.ExecutableNode{
		Node: core.Node{
			ID:   "batch1",
			Type: core.NodeSubDiagram,
			Config: map[string]any{
				"output_mode": "rich_object",
				"result_key":  "rows",
			},
		},
	}
	inputs := map[string]core.Envelope{
		"items": core.NewEnvelope("n1", []any{"a"}),
	}

	env := ExecuteBatch(context.Background(), uc, loader, node, inputs, "parent-1")

	body, ok := env.Body.(map[string]any)
	if !ok {
		t.Fatalf("expected a rich_object body, got %T", env.Body)
	}
	if body["total_items"] != 1 {
		t.Fatalf("expected total_items 1, got %v", body["total_items"])
	}
	if _, ok := body["rows"]; !ok {
		t.Fatalf("expected the configured result_key present, got %v", body)
	}
}

func TestExecuteBatchReturnsEmptyOutputForNoItems(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{diagram: twoNodeDiagram()}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "batch1", Type: core.NodeSubDiagram}}

	env := ExecuteBatch(context.Background(), uc, loader, node, map[string]core.Envelope{}, "parent-1")

	results, ok := env.Body.([]any)
	if !ok || len(results) != 0 {
		t.Fatalf("expected an empty results list, got %v", env.Body)
	}
}

func TestExecuteBatchReturnsErrorEnvelopeOnLoadFailure(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{err: context.DeadlineExceeded}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "batch1", Type: core.NodeSubDiagram}}
	inputs := map[string]core.Envelope{
		"items": core.NewEnvelope("n1", []any{"a"}),
	}

	env := ExecuteBatch(context.Background(), uc, loader, node, inputs, "parent-1")

	if !env.IsError() {
		t.Fatalf("expected a load-error envelope when the diagram cannot be loaded, got %v", env.Body)
	}
}
