package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/config"
	"github.com/DrSkyle/graphbench/pkg/engine/policy"
	"github.com/DrSkyle/graphbench/pkg/engine/report"
	"github.com/DrSkyle/graphbench/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
)

func quietLogger() *slog.Logger {
	return NewLogger(&bytes.Buffer{}, slog.LevelError, false)
}

func testEngine(t *testing.T, bench config.BenchConfig) *Engine {
	t.Helper()
	eng, err := New(context.Background(), WithConfig(Config{
		Bench:         bench,
		SkipTelemetry: true,
		Logger:        quietLogger(),
	}))
	require.NoError(t, err)
	return eng
}

func smallBench(sizes ...int) config.BenchConfig {
	b := config.DefaultBenchConfig()
	b.Sizes = sizes
	b.AvgDegree = 2
	b.Seed = 42
	return b
}

func TestEngineInitialization(t *testing.T) {
	cfg := Config{
		Bench:         config.DefaultBenchConfig(),
		SkipTelemetry: true,
		Logger:        slog.Default(),
	}

	eng, err := New(context.Background(),
		WithConfig(cfg),
		WithLogger(cfg.Logger),
	)
	if err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}
	if eng == nil {
		t.Fatal("Engine instance should not be nil")
	}
	if eng.Config().Format != report.FormatText {
		t.Errorf("Expected text format by default, got %q", eng.Config().Format)
	}
}

func TestEngineConfigValidation(t *testing.T) {
	bad := config.DefaultBenchConfig()
	bad.Sizes = []int{100, 4}

	_, err := New(context.Background(), WithConfig(Config{Bench: bad, SkipTelemetry: true, Logger: quietLogger()}))
	require.ErrorIs(t, err, graph.ErrInvalidConfiguration)

	budget := config.DefaultBenchConfig()
	budget.Budgets = []config.Budget{{ID: "broken", Condition: "dfs >"}}
	_, err = New(context.Background(), WithConfig(Config{Bench: budget, SkipTelemetry: true, Logger: quietLogger()}))
	require.Error(t, err)

	_, err = New(context.Background(), WithConfig(Config{
		Bench: config.DefaultBenchConfig(), Format: "xml", SkipTelemetry: true, Logger: quietLogger(),
	}))
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestRun_SingleRankEndToEnd(t *testing.T) {
	eng := testEngine(t, smallBench(10))
	world := comm.NewWorld(1)

	table, err := eng.Run(context.Background(), world[0])
	require.NoError(t, err)
	require.NotNil(t, table)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, 10, row.GraphSize)
	assert.GreaterOrEqual(t, row.DFSSeconds, 0.0)
	assert.GreaterOrEqual(t, row.BFSSeconds, 0.0)

	var out bytes.Buffer
	require.NoError(t, eng.Publish(&out, table, 1))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Graph Size\tDFS Time (s)\tBFS Time (s)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "10\t"), lines[1])
}

func runLocal(t *testing.T, eng *Engine, ranks int) (*report.Table, []*report.Table) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var mu sync.Mutex
	tables := make([]*report.Table, ranks)
	err := comm.Launch(ctx, ranks, func(ctx context.Context, c comm.Communicator) error {
		table, err := eng.Run(ctx, c)
		mu.Lock()
		tables[c.Rank()] = table
		mu.Unlock()
		return err
	})
	require.NoError(t, err)
	return tables[Coordinator], tables
}

func TestRun_MultiRankLocal(t *testing.T) {
	for _, strategy := range []config.Strategy{config.StrategyRegenerate, config.StrategyBroadcast} {
		t.Run(string(strategy), func(t *testing.T) {
			bench := smallBench(50, 200, 7)
			bench.Strategy = strategy
			bench.Verify = true
			eng := testEngine(t, bench)

			table, all := runLocal(t, eng, 3)
			require.NotNil(t, table)
			require.Len(t, table.Rows, 3)
			for i, n := range []int{50, 200, 7} {
				assert.Equal(t, n, table.Rows[i].GraphSize)
			}
			for rank := 1; rank < len(all); rank++ {
				assert.Nil(t, all[rank], "rank %d must not own a table", rank)
			}
		})
	}
}

func TestRun_MoreRanksThanVertices(t *testing.T) {
	eng := testEngine(t, smallBench(4))

	table, _ := runLocal(t, eng, 6)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 4, table.Rows[0].GraphSize)
}

func TestRun_OverTCP(t *testing.T) {
	const size = 2
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coord, err := comm.Listen("127.0.0.1:0", size)
	require.NoError(t, err)

	bench := smallBench(30, 60)
	bench.Strategy = config.StrategyBroadcast
	eng := testEngine(t, bench)

	var table *report.Table
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := coord.Accept(gCtx)
		if err != nil {
			return err
		}
		defer c.Close()
		table, err = eng.Run(gCtx, c)
		return err
	})
	g.Go(func() error {
		c, err := comm.Dial(gCtx, coord.Addr().String(), 1, size, comm.WithDialBackoff(10*time.Millisecond))
		if err != nil {
			return err
		}
		defer c.Close()
		_, err = eng.Run(gCtx, c)
		return err
	})
	require.NoError(t, g.Wait())

	require.NotNil(t, table)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 60, table.Rows[1].GraphSize)
}

func TestPublish_BudgetExceeded(t *testing.T) {
	bench := smallBench(10)
	bench.Budgets = []config.Budget{{ID: "always", Condition: "dfs >= 0.0 && size == 10"}}
	eng := testEngine(t, bench)

	table := &report.Table{}
	table.Append(report.Row{GraphSize: 10, DFSSeconds: 0.001, BFSSeconds: 0.001})

	var out bytes.Buffer
	err := eng.Publish(&out, table, 1)
	require.ErrorIs(t, err, policy.ErrBudgetExceeded)
	assert.Contains(t, out.String(), "Graph Size", "table must be written before budgets are checked")
}

type panickyComm struct {
	comm.Communicator
}

func (panickyComm) Barrier(context.Context) error {
	panic("barrier exploded")
}

func TestRun_RecoversPanic(t *testing.T) {
	eng := testEngine(t, smallBench(10))
	world := comm.NewWorld(1)

	_, err := eng.Run(context.Background(), panickyComm{Communicator: world[0]})
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "barrier exploded")
}

func TestRun_GenerationFailureReachesEveryRank(t *testing.T) {
	bench := smallBench(1000)
	bench.Strategy = config.StrategyBroadcast
	bench.MemoryLimit = 1024
	eng := testEngine(t, bench)

	errs := make([]error, 3)
	world := comm.NewWorld(3)
	var wg sync.WaitGroup
	for _, c := range world {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[c.Rank()] = eng.Run(context.Background(), c)
		}()
	}
	wg.Wait()

	assert.ErrorIs(t, errs[0], graph.ErrAllocation)
	for _, err := range errs[1:] {
		assert.ErrorIs(t, err, ErrNoGraph)
	}
}

func TestRedactSensitiveData(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo, true)
	log.Info("Dialing coordinator", "token", "s3cret", "rank", 2)

	assert.NotContains(t, buf.String(), "s3cret")
	assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
	assert.Contains(t, buf.String(), `"rank":2`)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestRun_RecordsCollectivesAndPasses(t *testing.T) {
	const (
		ranks    = 2
		vertices = 10
	)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	bench := smallBench(vertices)
	bench.Strategy = config.StrategyBroadcast
	eng, err := New(context.Background(),
		WithConfig(Config{Bench: bench, SkipTelemetry: true, Logger: quietLogger()}),
		WithMeter(mp.Meter("graphbench/engine")),
	)
	require.NoError(t, err)
	runLocal(t, eng, ranks)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	ops := map[string]int64{}
	passes := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Equal(t, "graphbench.collectives", m.Name)
				for _, dp := range data.DataPoints {
					op, _ := dp.Attributes.Value(attribute.Key("op"))
					ops[op.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Equal(t, "graphbench.traversal.seconds", m.Name)
				for _, dp := range data.DataPoints {
					mode, _ := dp.Attributes.Value(attribute.Key("mode"))
					size, _ := dp.Attributes.Value(attribute.Key("graph.size"))
					assert.Equal(t, int64(vertices), size.AsInt64())
					passes[mode.AsString()] += dp.Count
				}
			}
		}
	}

	// Per rank: one vertex count plus one degree per vertex, one id list
	// per vertex, two barriers and one reduction for each of DFS and BFS.
	assert.Equal(t, map[string]int64{
		"bcast_int":  ranks * (1 + vertices),
		"bcast_ints": ranks * vertices,
		"barrier":    ranks * 4,
		"reduce_max": ranks * 2,
	}, ops)
	assert.Equal(t, map[string]uint64{
		DFS.String(): ranks,
		BFS.String(): ranks,
	}, passes)
}
