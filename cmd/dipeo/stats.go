package main

import (
	"flag"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
)

func statsCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	format := fs.String("format", "", "diagram format: light|native|readable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dipeo stats <diagram>")
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

	byType := make(map[core.NodeType]int)
	for _, n := range diagram.Nodes {
		byType[n.Type]++
	}

	fmt.Printf("diagram_id: %s\n", diagram.ID)
	fmt.Printf("nodes: %d\n", len(diagram.Nodes))
	fmt.Printf("edges: %d\n", len(diagram.Edges))
	fmt.Printf("persons: %d\n", len(diagram.Persons))
	fmt.Println("nodes by type:")
	for t, count := range byType {
		fmt.Printf("  %-24s %d\n", t, count)
	}
	if compiled != nil {
		fmt.Printf("terminal nodes: %d\n", countTerminal(compiled))
	}
	fmt.Printf("diagnostics: %d\n", len(diags))
	for _, d := range diags {
		fmt.Printf("  [%s/%s] %s (node=%s)\n", d.Phase, d.Severity, d.Message, d.NodeID)
	}
	return nil
}

func countTerminal(d *compiler.ExecutableDiagram) int {
	n := 0
	for _, node := range d.Nodes {
		if node.IsTerminal {
			n++
		}
	}
	return n
}
