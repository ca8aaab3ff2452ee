package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/store"
)

type nodeMetricReport struct {
	NodeID   core.NodeID    `json:"node_id"`
	Status   core.NodeStatus `json:"status"`
	Duration string          `json:"duration,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type metricsReport struct {
	ExecutionID string             `json:"execution_id"`
	Status      string             `json:"status"`
	Duration    string             `json:"duration,omitempty"`
	LLMUsage    core.LLMUsage      `json:"llm_usage"`
	Nodes       []nodeMetricReport `json:"nodes"`
}

func metricsCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	executionID := fs.String("execution-id", "", "report metrics for this execution_id")
	latest := fs.Bool("latest", false, "report metrics for the most recently started execution")
	asJSON := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *executionID == "" && !*latest {
		return fmt.Errorf("usage: dipeo metrics (--execution-id ID | --latest) [--json]")
	}

	a, err := newApp(env)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	var state *core.ExecutionState
	if *latest {
		states, err := a.store.ListExecutions(ctx, store.ListFilter{Limit: 1})
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return fmt.Errorf("no executions recorded yet")
		}
		state = states[0]
	} else {
		state, err = a.store.GetState(ctx, *executionID)
		if err != nil {
			return err
		}
	}

	report := metricsReport{
		ExecutionID: state.ID,
		Status:      string(state.Status),
		LLMUsage:    state.LLMUsage,
	}
	if state.EndedAt != nil {
		report.Duration = state.EndedAt.Sub(state.StartedAt).String()
	}
	for _, nodeID := range state.ExecutedNodes {
		ns := state.NodeStates[nodeID]
		nr := nodeMetricReport{NodeID: nodeID, Status: ns.Status, Error: ns.Error}
		if ns.StartedAt != nil && ns.EndedAt != nil {
			nr.Duration = ns.EndedAt.Sub(*ns.StartedAt).String()
		}
		report.Nodes = append(report.Nodes, nr)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("execution_id: %s\nstatus: %s\nduration: %s\n", report.ExecutionID, report.Status, report.Duration)
	fmt.Printf("llm_usage: prompt=%d completion=%d total=%d\n", report.LLMUsage.PromptTokens, report.LLMUsage.CompletionTokens, report.LLMUsage.TotalTokens)
	for _, n := range report.Nodes {
		fmt.Printf("  %-24s %-14s %s %s\n", n.NodeID, n.Status, n.Duration, n.Error)
	}
	return nil
}
