package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/handler"
	"github.com/dipeo/dipeo-core/core/observe"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/store"
	"github.com/dipeo/dipeo-core/core/subdiagram"
	"github.com/dipeo/dipeo-core/core/transport"
	"github.com/dipeo/dipeo-core/core/usecase"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// stateDBPath is where the CLI's default sqlite repository lives, so that
// `run` persists executions a later `list`/`results`/`metrics` invocation
// (a separate process) can still read.
const stateDBPath = "dipeo_state.db"

// app wires every C1-C12 component the CLI needs for one process
// lifetime, following core/usecase.New's "root registry, fresh child per
// execution" pattern.
type app struct {
	bus      *event.Bus
	store    *store.Store
	metrics  *observe.MetricsObserver
	promReg  *prometheus.Registry
	services *registry.Registry
	uc       *usecase.ExecuteDiagramUseCase
	logger   *transport.SlogLogger
}

func newApp(env envConfig) (*app, error) {
	level := parseLogLevel(env.LogLevel)
	logger := transport.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	bus := event.NewBus()

	repo, err := store.NewSQLiteRepository(stateDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	st := store.New(repo, bus)

	promRegistry := transport.NewMetricsRegistry()
	metrics := observe.NewMetricsObserver(promRegistry)

	services := registry.New()
	registry.Register(services, registry.FileSystem, any(osFileSystem{}))
	registry.Register(services, registry.APIInvoker, any(newHTTPInvoker()))
	registry.Register(services, registry.CodeRunner, any(subprocessCodeRunner{}))
	registry.Register(services, registry.TemplateProcessor, any(textTemplateProcessor{}))
	registry.Register(services, registry.ProviderRegistry, any(handler.ProviderResolver(newEnvProviderResolver())))
	registry.Register(services, registry.DiagramPort, any(subdiagram.Loader(fileLoader{})))

	handlers := handler.Default()
	if env.HasFeature("tracing") {
		tp := sdktrace.NewTracerProvider()
		tracer := transport.NewNodeTracer(tp.Tracer("dipeo-core"))
		handlers = transport.WrapAll(tracer, handlers)
	}

	uc := usecase.New(handlers, bus, st, metrics, services)
	registry.Register(services, registry.ExecutionOrchestrator, any(uc))

	if !env.MinimalWiring {
		logger.Info("wired optional observers", "metrics", true)
	}

	return &app{
		bus:      bus,
		store:    st,
		metrics:  metrics,
		promReg:  promRegistry,
		services: services,
		uc:       uc,
		logger:   logger,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fileLoader implements subdiagram.Loader by reading named diagrams off
// disk relative to the working directory, or decoding inline diagram_data
// when no name is given.
type fileLoader struct{}

func (fileLoader) Load(ctx context.Context, name, format string, inlineData map[string]any) (core.Diagram, error) {
	if len(inlineData) > 0 {
		raw, err := json.Marshal(inlineData)
		if err != nil {
			return core.Diagram{}, err
		}
		return compiler.DecodeDiagram(raw, compiler.FormatNative)
	}
	if name == "" {
		return core.Diagram{}, fmt.Errorf("sub_diagram: no diagram_name or diagram_data configured")
	}
	f := compiler.FormatNative
	if format != "" {
		parsed, err := compiler.ParseFormat(format)
		if err != nil {
			return core.Diagram{}, err
		}
		f = parsed
	} else {
		f = compiler.DetectFormat(name)
	}
	return compiler.LoadDiagram(name, f)
}
