package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dipeo/dipeo-core/core"
)

type resultsReport struct {
	SessionID     string                       `json:"session_id"`
	Status        string                       `json:"status"`
	ExecutedNodes []core.NodeID                `json:"executed_nodes,omitempty"`
	NodeOutputs   map[core.NodeID]core.Envelope `json:"node_outputs,omitempty"`
	Error         string                       `json:"error,omitempty"`
	LLMUsage      *core.LLMUsage               `json:"llm_usage,omitempty"`
	StartedAt     *string                      `json:"started_at,omitempty"`
	EndedAt       *string                      `json:"ended_at,omitempty"`
}

func resultsCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dipeo results <session_id>")
	}
	sessionID := fs.Arg(0)
	if !core.ValidExecutionID(sessionID) {
		return fmt.Errorf("session_id %q does not match exec_[0-9a-f]{32}", sessionID)
	}

	a, err := newApp(env)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.store.GetState(context.Background(), sessionID)
	if err != nil {
		return err
	}

	report := resultsReport{
		SessionID:     state.ID,
		Status:        string(state.Status),
		ExecutedNodes: state.ExecutedNodes,
		NodeOutputs:   state.NodeOutputs,
		Error:         state.Error,
	}
	if state.LLMUsage != (core.LLMUsage{}) {
		usage := state.LLMUsage
		report.LLMUsage = &usage
	}
	started := state.StartedAt.Format("2006-01-02T15:04:05Z07:00")
	report.StartedAt = &started
	if state.EndedAt != nil {
		ended := state.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		report.EndedAt = &ended
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
