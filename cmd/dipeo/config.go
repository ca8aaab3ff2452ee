// Command dipeo is the CLI surface spec.md §6 calls "the only thing this
// core exposes directly": run|stats|compile|convert|list|metrics|results,
// consolidated into one multi-command binary the way a real production
// tool ships rather than as the teacher's one-example-per-main.go layout
// (examples/*/main.go).
package main

import (
	"os"
	"strconv"
	"strings"
)

// envConfig captures the recognized environment variables from spec.md
// §6, read once at startup rather than from inside a hot path; the core
// packages never read env vars themselves.
type envConfig struct {
	MinimalWiring bool
	Features      []string
	LogLevel      string
	TimingEnabled bool
	ExecutionID   string
}

func loadEnvConfig() envConfig {
	var cfg envConfig
	cfg.MinimalWiring, _ = strconv.ParseBool(os.Getenv("DIPEO_MINIMAL_WIRING"))
	if csv := os.Getenv("DIPEO_FEATURES"); csv != "" {
		for _, f := range strings.Split(csv, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.Features = append(cfg.Features, f)
			}
		}
	}
	cfg.LogLevel = os.Getenv("DIPEO_LOG_LEVEL")
	cfg.TimingEnabled, _ = strconv.ParseBool(os.Getenv("DIPEO_TIMING_ENABLED"))
	cfg.ExecutionID = os.Getenv("DIPEO_EXECUTION_ID")
	return cfg
}

// HasFeature reports whether csv feature name f was listed in
// DIPEO_FEATURES.
func (c envConfig) HasFeature(f string) bool {
	for _, got := range c.Features {
		if got == f {
			return true
		}
	}
	return false
}
