package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/AshkanYarmoradi/go-ferret/adapters/memory"
	"github.com/AshkanYarmoradi/go-ferret/adapters/postgres"
	"github.com/AshkanYarmoradi/go-ferret/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-ferret/cli/config"
	"github.com/AshkanYarmoradi/go-ferret/examples/counter"
	"github.com/AshkanYarmoradi/go-ferret/middleware/metrics"
	"github.com/AshkanYarmoradi/go-ferret/middleware/tracing"
	"github.com/AshkanYarmoradi/go-ferret/serializer/msgpack"
	"github.com/AshkanYarmoradi/go-ferret/serializer/protobuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// CLIAdapter is the event log as seen by CLI commands.
type CLIAdapter interface {
	adapters.EventLogAdapter
	adapters.HealthChecker
}

// AdapterFactory creates the event log adapter named by the configuration.
type AdapterFactory struct {
	config *config.Config
	dir    string
	dbURL  string
}

// NewAdapterFactory creates a new adapter factory. dir is the directory
// holding the config file; relative sqlite paths resolve against it.
func NewAdapterFactory(cfg *config.Config, dir string) (*AdapterFactory, error) {
	dbURL := cfg.DatabaseURL()
	if cfg.Database.Driver == "postgres" && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	return &AdapterFactory{
		config: cfg,
		dir:    dir,
		dbURL:  dbURL,
	}, nil
}

// CreateAdapter creates the adapter for the configured driver.
// For PostgreSQL, it validates the connection with a short timeout to fail fast on invalid URLs.
func (f *AdapterFactory) CreateAdapter(ctx context.Context) (CLIAdapter, error) {
	ctx = ensureContext(ctx)

	switch f.config.Database.Driver {
	case "postgres":
		adapter, err := postgres.NewAdapter(f.dbURL, postgres.WithSchema(f.config.Database.Schema))
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := adapter.Ping(pingCtx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		return adapter, nil

	case "sqlite":
		adapter, err := sqlite.NewAdapter(f.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite adapter: %w", err)
		}
		return adapter, nil

	case "memory":
		return memory.NewAdapter(), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", f.config.Database.Driver)
	}
}

// DatabasePath returns the resolved sqlite database file.
func (f *AdapterFactory) DatabasePath() string {
	return f.config.DatabasePath(f.dir)
}

// IsMemoryDriver returns true if using the memory driver.
func (f *AdapterFactory) IsMemoryDriver() bool {
	return f.config.Database.Driver == "memory"
}

// Location describes where events are stored, with credentials left out.
func (f *AdapterFactory) Location() string {
	switch f.config.Database.Driver {
	case "sqlite":
		return f.DatabasePath()
	case "postgres":
		return redactURL(f.dbURL)
	default:
		return "in-process memory"
	}
}

// redactURL drops the user info of a connection URL.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}

// NewSerializer returns the payload codec called name.
func NewSerializer(name string) (ferret.Serializer, error) {
	switch name {
	case "", "json":
		return ferret.NewJSONSerializer(), nil
	case "msgpack":
		return msgpack.NewSerializer(msgpack.WithSortedKeys()), nil
	case "protobuf":
		return protobuf.NewSerializer(), nil
	default:
		return nil, fmt.Errorf("unsupported serializer: %s", name)
	}
}

// ensureContext returns the provided context or a background context if nil.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// loadConfig is a helper that loads config from the current working directory.
// Returns (config, config directory, error).
func loadConfig() (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}

	dir, cfg, err := config.FindConfig(cwd)
	if err != nil {
		return nil, cwd, fmt.Errorf("no %s found: %w", config.ConfigFileName, err)
	}

	return cfg, dir, nil
}

// RuntimeOptions tune the stack built by NewRuntime.
type RuntimeOptions struct {
	// Trace forces span output even when the config leaves it off.
	Trace bool

	// TraceOutput receives spans. Defaults to stderr.
	TraceOutput io.Writer

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// Runtime is the event-sourcing stack a command works against: the
// configured adapter wrapped with metrics and tracing, a repository using
// the configured serializer, and an engine running the counter domain.
type Runtime struct {
	Config     *config.Config
	Dir        string
	Factory    *AdapterFactory
	Adapter    CLIAdapter
	Domain     *counter.Domain
	Repository *ferret.Repository
	Engine     *ferret.Engine
	Metrics    *metrics.Metrics

	registry *prometheus.Registry
	closers  []func(context.Context) error
}

// NewRuntime loads the nearest config file and builds the runtime for it.
func NewRuntime(ctx context.Context, opts RuntimeOptions) (*Runtime, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return NewRuntimeWithConfig(ctx, cfg, dir, opts)
}

// NewRuntimeWithConfig builds the runtime for cfg. The schema is created
// when missing.
func NewRuntimeWithConfig(ctx context.Context, cfg *config.Config, dir string, opts RuntimeOptions) (*Runtime, error) {
	ctx = ensureContext(ctx)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s: %s", config.ConfigFileName, strings.Join(errs, "; "))
	}

	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.TraceOutput == nil {
		opts.TraceOutput = os.Stderr
	}

	serializer, err := NewSerializer(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	factory, err := NewAdapterFactory(cfg, dir)
	if err != nil {
		return nil, err
	}

	base, err := factory.CreateAdapter(ctx)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Dir:      dir,
		Factory:  factory,
		Domain:   counter.NewWithLimit(cfg.Counter.Limit),
		registry: prometheus.NewRegistry(),
		closers:  []func(context.Context) error{func(context.Context) error { return base.Close() }},
	}

	if err := base.Initialize(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize event log: %w", err)
	}

	rt.Metrics = metrics.New(metrics.WithMetricsServiceName(cfg.Project.Name))
	if err := rt.Metrics.Register(rt.registry); err != nil {
		rt.Close()
		return nil, err
	}

	logger := newLogger(opts.LogOutput, cfg.Log.Level)
	middleware := []ferret.Middleware{
		ferret.RecoveryMiddleware(),
		ferret.CorrelationIDMiddleware(nil),
		ferret.NewLoggingMiddleware(logger).Middleware(),
		rt.Metrics.TransactMiddleware(),
	}

	var adapter CLIAdapter = rt.Metrics.WrapAdapter(base)

	if cfg.Trace || opts.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceOutput), stdouttrace.WithPrettyPrint())
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		rt.closers = append([]func(context.Context) error{provider.Shutdown}, rt.closers...)

		tracer := tracing.NewTracer(
			tracing.WithTracerProvider(provider),
			tracing.WithServiceName(cfg.Project.Name),
		)
		adapter = tracing.NewAdapterMiddleware(adapter, tracer)
		middleware = append(middleware, tracing.TransactMiddleware(tracer))
	}

	rt.Adapter = adapter
	rt.Repository = ferret.NewRepository(adapter,
		ferret.WithSerializer(serializer),
		ferret.WithLogger(logger),
		ferret.WithAggregateTypes(rt.Domain.Type),
	)
	rt.Engine = ferret.NewEngine(rt.Repository,
		ferret.WithEngineLogger(logger),
		ferret.WithMiddleware(middleware...),
	)
	rt.Engine.Register(rt.Domain.Commands()...)

	return rt, nil
}

// WriteMetrics writes the runtime's metrics in the Prometheus text format.
func (r *Runtime) WriteMetrics(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes spans and releases the adapter.
func (r *Runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, closeFn := range r.closers {
		_ = closeFn(ctx)
	}
	r.closers = nil
}
