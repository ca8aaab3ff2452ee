package compiler

import (
	"testing"

	"github.com/dipeo/dipeo-core/core"
)

func sampleFormatDiagram() core.Diagram {
	return core.Diagram{
		ID: "d1",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", SourceHandle: "default", TargetNode: "end", TargetHandle: "default"},
		},
	}
}

func TestParseFormatAcceptsTheThreeDocumentedValues(t *testing.T) {
	for _, s := range []string{"native", "light", "readable"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) returned error: %v", s, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected an error for an unrecognized format")
	}
}

func TestDetectFormatUsesFileExtension(t *testing.T) {
	if got := DetectFormat("diagram.yaml"); got != FormatLight {
		t.Errorf("expected %q for .yaml, got %q", FormatLight, got)
	}
	if got := DetectFormat("diagram.yml"); got != FormatLight {
		t.Errorf("expected %q for .yml, got %q", FormatLight, got)
	}
	if got := DetectFormat("diagram.json"); got != FormatNative {
		t.Errorf("expected %q for .json, got %q", FormatNative, got)
	}
}

func TestEncodeDecodeNativeRoundTrips(t *testing.T) {
	d := sampleFormatDiagram()
	out, err := EncodeDiagram(d, FormatNative)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDiagram(out, FormatNative)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != d.ID || len(got.Nodes) != len(d.Nodes) || len(got.Edges) != len(d.Edges) {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestEncodeDecodeLightYAMLRoundTrips(t *testing.T) {
	d := sampleFormatDiagram()
	out, err := EncodeDiagram(d, FormatLight)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDiagram(out, FormatLight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != d.ID || len(got.Nodes) != len(d.Nodes) {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestEncodeReadableProducesIndentedJSONDecodableAsNative(t *testing.T) {
	d := sampleFormatDiagram()
	out, err := EncodeDiagram(d, FormatReadable)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty readable output")
	}
	got, err := DecodeDiagram(out, FormatReadable)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("expected ID %q, got %q", d.ID, got.ID)
	}
}
