// Package engine drives the benchmark: for each configured graph size it
// replicates the graph, times DFS and BFS over each rank's vertex range and
// reduces the timings to the coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/config"
	"github.com/DrSkyle/graphbench/pkg/engine/policy"
	"github.com/DrSkyle/graphbench/pkg/engine/report"
	"github.com/DrSkyle/graphbench/pkg/graph"
	"github.com/DrSkyle/graphbench/pkg/telemetry"
	"github.com/DrSkyle/graphbench/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrPanic wraps a panic recovered inside Run.
var ErrPanic = errors.New("benchmark panicked")

// Config holds engine settings.
type Config struct {
	Bench  config.BenchConfig
	Format report.Format

	// Rank of this process, used to label telemetry. In-process worlds
	// leave it at zero.
	Rank int

	// Telemetry config.
	OtelEndpoint  string // "http://localhost:4318" or via env
	SkipTelemetry bool   // Set true if embedding in an app that already has OTEL

	Logger *slog.Logger
}

// Engine runs benchmark cycles. One Engine may serve several ranks of an
// in-process world concurrently; Run keeps all per-rank state local.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	config   Config
	budgets  *policy.CELEngine
	meter    metric.Meter
	metrics  *instruments
	shutdown func(context.Context) error
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New validates the configuration and compiles budgets, so that every rank
// fails before its first collective when the run cannot succeed.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		Logger: NewLogger(os.Stderr, slog.LevelInfo, false),
		Tracer: telemetry.Tracer("graphbench/engine"),
		config: Config{Bench: config.DefaultBenchConfig(), Format: report.FormatText},
	}
	for _, opt := range opts {
		opt(e)
	}

	slog.SetDefault(e.Logger)

	if err := e.config.Bench.Validate(); err != nil {
		return nil, err
	}
	if _, err := report.ParseFormat(string(e.config.Format)); err != nil {
		return nil, err
	}

	budgets, err := policy.NewCELEngine()
	if err != nil {
		return nil, err
	}
	if err := budgets.Compile(e.config.Bench.Budgets); err != nil {
		return nil, err
	}
	e.budgets = budgets

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint, e.config.Rank)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			e.shutdown = shutdown
			e.Tracer = telemetry.Tracer("graphbench/engine")
		}
	}

	if e.meter == nil {
		e.meter = telemetry.Meter("graphbench/engine")
	}
	metrics, err := newInstruments(e.meter)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	e.metrics = metrics

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.Logger = l
		}
	}
}

// WithTracer overrides the tracer, mostly for tests.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.Tracer = t
	}
}

// WithMeter records metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) {
		e.meter = m
	}
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if cfg.Format == "" {
			e.config.Format = report.FormatText
		}
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// Config returns the settings the engine runs with.
func (e *Engine) Config() Config {
	return e.config
}

// Run executes one cycle per configured graph size on the rank behind c.
// Every rank of the group must call Run with the same configuration. The
// coordinator gets the result table; other ranks get nil.
func (e *Engine) Run(ctx context.Context, c comm.Communicator) (table *report.Table, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run", trace.WithAttributes(
		attribute.Int("rank", c.Rank()),
		attribute.Int("ranks", c.Size()),
	))
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx, &err)

	log := e.Logger.With("rank", c.Rank())
	bench := e.config.Bench
	if err := bench.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid configuration")
		return nil, err
	}

	c = e.metrics.wrap(c)
	coordinator := c.Rank() == Coordinator
	if coordinator {
		table = &report.Table{}
		log.Info("Starting benchmark",
			"sizes", bench.Sizes,
			"avg_degree", bench.AvgDegree,
			"seed", bench.Seed,
			"strategy", bench.Strategy,
			"ranks", c.Size(),
		)
	}

	for _, n := range bench.Sizes {
		row, err := e.runConfiguration(ctx, c, log, n)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "configuration failed")
			return nil, fmt.Errorf("graph size %d: %w", n, err)
		}
		if coordinator {
			table.Append(row)
		}
	}
	return table, nil
}

func (e *Engine) runConfiguration(ctx context.Context, c comm.Communicator, log *slog.Logger, n int) (report.Row, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Configuration", trace.WithAttributes(attribute.Int("graph.size", n)))
	defer span.End()

	bench := e.config.Bench
	params := GraphParams{
		Vertices:    n,
		AvgDegree:   bench.AvgDegree,
		Seed:        bench.Seed,
		MemoryLimit: bench.MemoryLimit,
	}
	g, err := Replicate(ctx, c, params, bench.Strategy)
	if err != nil {
		return report.Row{}, err
	}
	if bench.Verify {
		if err := graph.Validate(g); err != nil {
			return report.Row{}, err
		}
	}

	r := graph.Partition(g.NumVertices(), c.Rank(), c.Size())
	progress := log.Debug
	if c.Rank() == Coordinator {
		progress = log.Info
	}
	progress("Graph ready", "graph_size", n, "edges", g.NumEdges(), "range", r.String())

	row := report.Row{GraphSize: n}
	if row.DFSSeconds, err = e.phase(ctx, c, g, r, DFS, log); err != nil {
		return report.Row{}, err
	}
	if row.BFSSeconds, err = e.phase(ctx, c, g, r, BFS, log); err != nil {
		return report.Row{}, err
	}

	progress("Configuration done", "graph_size", n, "dfs_seconds", row.DFSSeconds, "bfs_seconds", row.BFSSeconds)
	return row, nil
}

// phase is Measure followed by the MAX reduction of its time.
func (e *Engine) phase(ctx context.Context, c comm.Communicator, g *graph.Graph, r graph.VertexRange, mode Mode, log *slog.Logger) (float64, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Phase", trace.WithAttributes(attribute.String("mode", mode.String())))
	defer span.End()

	s, err := Measure(ctx, c, g, r, mode)
	if err != nil {
		return 0, err
	}
	e.metrics.recordPass(ctx, g.NumVertices(), mode, s)
	log.Debug("Local pass", "mode", mode.String(), "seconds", s.Seconds, "roots", s.Roots, "marked", s.Marked)
	span.SetAttributes(attribute.Float64("local.seconds", s.Seconds))

	return Reduce(ctx, c, s.Seconds)
}

// Publish renders t to w in the configured format and then checks budgets.
// It is called by the coordinator only. A budget violation is returned as
// an error wrapping policy.ErrBudgetExceeded after the table is written.
func (e *Engine) Publish(w io.Writer, t *report.Table, ranks int) error {
	if err := t.Render(w, e.config.Format); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	violations, err := e.budgets.Check(t, ranks)
	for _, v := range violations {
		e.Logger.Warn("Budget exceeded",
			"budget_id", v.BudgetID,
			"condition", v.Condition,
			"graph_size", v.Row.GraphSize,
			"dfs_seconds", v.Row.DFSSeconds,
			"bfs_seconds", v.Row.BFSSeconds,
		)
	}
	return err
}

// Close flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}

// recoverPanic turns a panic inside Run into an error on the calling rank.
func (e *Engine) recoverPanic(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		_, span := e.Tracer.Start(ctx, "CriticalPanic")

		stack := debug.Stack()

		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
		*err = fmt.Errorf("%w: %v", ErrPanic, r)
	}
}
