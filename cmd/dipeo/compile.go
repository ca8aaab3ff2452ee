package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
)

type compileReport struct {
	DiagramID   string             `json:"diagram_id"`
	Valid       bool               `json:"valid"`
	Diagnostics []core.Diagnostic  `json:"diagnostics,omitempty"`
	NodeCount   int                `json:"node_count"`
	EdgeCount   int                `json:"edge_count"`
}

func compileCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	checkOnly := fs.Bool("check-only", false, "only report diagnostics, do not print the compiled diagram")
	asJSON := fs.Bool("json", false, "emit machine-readable JSON")
	format := fs.String("format", "", "diagram format: light|native|readable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dipeo compile <diagram> [--check-only] [--json]")
	}
	path := fs.Arg(0)

	f, err := resolveFormat(*format, path)
	if err != nil {
		return err
	}
	diagram, err := compiler.LoadDiagram(path, f)
	if err != nil {
		return err
	}

	compiled, diags := compiler.CompileWithDiagnostics(diagram)
	valid := true
	for _, d := range diags {
		if d.Severity == compiler.SeverityError {
			valid = false
			break
		}
	}

	report := compileReport{
		DiagramID:   diagram.ID,
		Valid:       valid,
		Diagnostics: diags,
		NodeCount:   len(diagram.Nodes),
		EdgeCount:   len(diagram.Edges),
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("diagram_id: %s\nvalid: %t\n", report.DiagramID, report.Valid)
		for _, d := range diags {
			fmt.Printf("  [%s/%s] %s (node=%s)\n", d.Phase, d.Severity, d.Message, d.NodeID)
		}
	}

	if !*checkOnly && compiled != nil && !*asJSON {
		out, err := compiler.EncodeDiagram(diagram, compiler.FormatReadable)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if !valid {
		return fmt.Errorf("diagram failed compilation")
	}
	return nil
}
