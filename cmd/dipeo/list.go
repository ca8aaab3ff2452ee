package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dipeo/dipeo-core/core/store"
)

type listEntry struct {
	ExecutionID string `json:"execution_id"`
	DiagramID   string `json:"diagram_id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
}

func listCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	format := fs.String("format", "table", "output format: table|json")
	asJSON := fs.Bool("json", false, "emit machine-readable JSON (equivalent to --format json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(env)
	if err != nil {
		return err
	}
	defer a.Close()

	states, err := a.store.ListExecutions(context.Background(), store.ListFilter{Limit: 100})
	if err != nil {
		return err
	}

	entries := make([]listEntry, len(states))
	for i, s := range states {
		entries[i] = listEntry{
			ExecutionID: s.ID,
			DiagramID:   s.DiagramID,
			Status:      string(s.Status),
			StartedAt:   s.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	if *asJSON || *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	fmt.Printf("%-40s %-24s %-14s %s\n", "EXECUTION_ID", "DIAGRAM_ID", "STATUS", "STARTED_AT")
	for _, e := range entries {
		fmt.Printf("%-40s %-24s %-14s %s\n", e.ExecutionID, e.DiagramID, e.Status, e.StartedAt)
	}
	return nil
}
