package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/engine"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/transport"
	"github.com/dipeo/dipeo-core/core/usecase"
	"github.com/go-chi/chi/v5"
)

func runCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	timeout := fs.Int("timeout", 0, "execution timeout in seconds (0 = engine default)")
	inputsFile := fs.String("inputs", "", "path to a JSON file of initial variables")
	inputData := fs.String("input-data", "", "inline JSON of initial variables")
	format := fs.String("format", "", "diagram format: light|native|readable (default: detected from extension)")
	debug := fs.Bool("debug", false, "verbose execution_log output and a local /metrics server")
	simple := fs.Bool("simple", false, "suppress step progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dipeo run <diagram> [flags]")
	}
	diagramPath := fs.Arg(0)

	f, err := resolveFormat(*format, diagramPath)
	if err != nil {
		return err
	}
	diagram, err := compiler.LoadDiagram(diagramPath, f)
	if err != nil {
		return err
	}

	variables, err := loadVariables(*inputsFile, *inputData)
	if err != nil {
		return err
	}

	a, err := newApp(env)
	if err != nil {
		return err
	}
	defer a.Close()

	if *debug {
		a.logger.Info("execution_log streaming enabled")
		stop := streamExecutionLogs(a)
		defer stop()
		stopMetrics := serveDebugMetrics(a)
		defer stopMetrics()
	}

	executionID := env.ExecutionID
	if executionID == "" {
		executionID = core.NewExecutionID()
	}

	var engineOpts []engine.Option
	if *timeout > 0 {
		engineOpts = append(engineOpts, engine.WithExecutionTimeout(time.Duration(*timeout)*time.Second))
	}
	engineOpts = append(engineOpts, engine.WithMinimalWiring(env.MinimalWiring))

	var progress func(engine.StepProgress)
	if !*simple {
		progress = func(p engine.StepProgress) {
			fmt.Fprintf(os.Stderr, "step %d: %d/%d nodes complete (%.0f%%)\n", p.Step, p.Completed, p.Total, p.Percent)
		}
	}

	state, runErr := a.uc.Execute(context.Background(), executionID, diagram, usecase.ExecutionOptions{Variables: variables}, progress, engineOpts...)

	fmt.Printf("execution_id: %s\nstatus: %s\n", state.ID, state.Status)
	if state.Error != "" {
		fmt.Printf("error: %s\n", state.Error)
	}

	switch state.Status {
	case core.ExecCompleted:
		return nil
	default:
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("execution ended with status %s", state.Status)
	}
}

func resolveFormat(flagValue, path string) (compiler.Format, error) {
	if flagValue != "" {
		return compiler.ParseFormat(flagValue)
	}
	return compiler.DetectFormat(path), nil
}

func loadVariables(inputsFile, inputData string) (map[string]any, error) {
	switch {
	case inputsFile != "" && inputData != "":
		return nil, fmt.Errorf("specify only one of --inputs or --input-data")
	case inputsFile != "":
		data, err := os.ReadFile(inputsFile)
		if err != nil {
			return nil, err
		}
		var vars map[string]any
		if err := json.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("parse --inputs file: %w", err)
		}
		return vars, nil
	case inputData != "":
		var vars map[string]any
		if err := json.Unmarshal([]byte(inputData), &vars); err != nil {
			return nil, fmt.Errorf("parse --input-data: %w", err)
		}
		return vars, nil
	default:
		return nil, nil
	}
}

// streamExecutionLogs subscribes a plain stderr sink to execution_log
// events for the duration of one `run` invocation, the --debug surface
// for the otherwise bus-internal ExecutionLog event type.
func streamExecutionLogs(a *app) (stop func()) {
	handle := a.bus.Subscribe([]event.EventType{event.ExecutionLog}, func(ev event.Event) {
		if p, ok := ev.Payload.(event.ExecutionLogPayload); ok {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Level, p.Message)
		}
	}, event.PriorityNormal, nil)
	return func() { a.bus.Unsubscribe(handle) }
}

// serveDebugMetrics mounts core/transport.MetricsHandler on a chi router
// behind a background HTTP server, the minimal local metrics surface
// mentioned in SPEC_FULL.md's domain-stack wiring table. It is only
// started under --debug since GraphQL/SSE transport (and, by extension,
// an always-on HTTP surface) is explicitly out of scope.
func serveDebugMetrics(a *app) (stop func()) {
	r := chi.NewRouter()
	r.Handle("/metrics", transport.MetricsHandler(a.promReg))
	srv := &http.Server{Addr: "127.0.0.1:9090", Handler: r}
	go func() {
		_ = srv.ListenAndServe()
	}()
	a.logger.Info("debug metrics server listening", "addr", srv.Addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
