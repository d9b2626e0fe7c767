package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/config"
	"github.com/DrSkyle/graphbench/pkg/engine"
	"github.com/DrSkyle/graphbench/pkg/engine/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errUnknownTransport = errors.New("unknown transport")

var benchKeys = []string{
	"sizes", "avg-degree", "seed", "strategy", "verify", "memory-limit",
}

var runKeys = []string{
	"ranks", "transport", "rank", "size", "coordinator", "token", "format", "plan", "budget",
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	defaults := config.DefaultBenchConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the traversal benchmark",
		Long: `Generate one random graph per size, time DFS and BFS over each rank's
vertex range and print the slowest rank's time per configuration.

Examples:
  graphbench run --sizes 100000,300000 --ranks 4
  graphbench run --transport tcp --rank 0 --size 3 --coordinator :7070
  graphbench run --plan bench.hcl --format json --budget 'dfs > 2.0'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, v)
		},
	}

	f := cmd.Flags()
	f.IntSlice("sizes", defaults.Sizes, "Graph sizes (vertex counts), one configuration each")
	f.Int("avg-degree", defaults.AvgDegree, "Minimum neighbors per vertex")
	f.Int64("seed", defaults.Seed, "Generator seed shared by all ranks")
	f.String("strategy", string(defaults.Strategy), "Graph replication: regenerate or broadcast")
	f.Bool("verify", false, "Check adjacency symmetry of every replicated graph")
	f.Int64("memory-limit", 0, "Refuse graphs whose adjacency would exceed this many bytes")
	f.Int("ranks", 1, "Number of in-process ranks (local transport)")
	f.String("transport", "local", "Communicator: local or tcp")
	f.Int("rank", 0, "This process's rank (tcp transport)")
	f.Int("size", 1, "Number of processes in the group (tcp transport)")
	f.String("coordinator", "127.0.0.1:7070", "Rank 0 listen/dial address (tcp transport)")
	f.String("token", "", "Shared secret checked during the tcp handshake")
	f.String("format", string(report.FormatText), "Report format: text, json, yaml or csv")
	f.String("plan", "", "HCL plan file with benchmark settings and budgets")
	f.StringArray("budget", nil, "CEL budget expression over size, dfs, bfs and ranks (repeatable)")

	bindFlags(v, f, benchKeys...)
	bindFlags(v, f, runKeys...)
	return cmd
}

// benchConfig layers defaults, the plan file and explicit settings (flags,
// environment, config file), later layers winning.
func benchConfig(v *viper.Viper) (config.BenchConfig, error) {
	cfg := config.DefaultBenchConfig()

	if path := v.GetString("plan"); path != "" {
		var err error
		if cfg, err = config.LoadPlan(path, cfg); err != nil {
			return cfg, err
		}
	}

	if v.IsSet("sizes") {
		sizes, err := intSlice(v.Get("sizes"))
		if err != nil {
			return cfg, fmt.Errorf("sizes: %w", err)
		}
		cfg.Sizes = sizes
	}
	if v.IsSet("avg-degree") {
		cfg.AvgDegree = v.GetInt("avg-degree")
	}
	if v.IsSet("seed") {
		cfg.Seed = v.GetInt64("seed")
	}
	if v.IsSet("strategy") {
		s, err := config.ParseStrategy(v.GetString("strategy"))
		if err != nil {
			return cfg, err
		}
		cfg.Strategy = s
	}
	if v.IsSet("verify") {
		cfg.Verify = v.GetBool("verify")
	}
	if v.IsSet("memory-limit") {
		cfg.MemoryLimit = v.GetInt64("memory-limit")
	}

	var fileBudgets []config.Budget
	if err := v.UnmarshalKey("budgets", &fileBudgets); err != nil {
		return cfg, fmt.Errorf("budgets: %w", err)
	}
	cfg.Budgets = append(cfg.Budgets, fileBudgets...)
	for i, expr := range stringList(v.Get("budget")) {
		cfg.Budgets = append(cfg.Budgets, config.Budget{ID: fmt.Sprintf("flag_%d", i), Condition: expr})
	}

	return cfg, cfg.Validate()
}

// intSlice accepts the forms viper hands back for a list: a parsed slice
// from flags or the config file, or a comma separated string from the
// environment.
func intSlice(raw any) ([]int, error) {
	switch val := raw.(type) {
	case []int:
		return val, nil
	case []any:
		out := make([]int, 0, len(val))
		for _, x := range val {
			n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(x)))
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case string:
		var out []int
		for _, field := range strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' || r == '[' || r == ']' }) {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported list value %T", raw)
}

// stringList keeps an environment string whole, since budget expressions
// contain spaces.
func stringList(raw any) []string {
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}

func runBenchmark(cmd *cobra.Command, v *viper.Viper) error {
	transport := v.GetString("transport")
	if transport != "local" && transport != "tcp" {
		return fmt.Errorf("%w: %q", errUnknownTransport, transport)
	}

	bench, err := benchConfig(v)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	logger, err := newLogger(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rank := 0
	if transport == "tcp" {
		rank = v.GetInt("rank")
	}

	ctx := cmd.Context()
	eng, err := engine.New(ctx, engine.WithConfig(engine.Config{
		Bench:        bench,
		Format:       format,
		Rank:         rank,
		OtelEndpoint: v.GetString("otel-endpoint"),
		Logger:       logger,
	}))
	if err != nil {
		return err
	}
	defer eng.Close(context.WithoutCancel(ctx))

	switch transport {
	case "local":
		ranks := v.GetInt("ranks")
		table, err := runLocal(ctx, eng, ranks)
		if err != nil {
			return err
		}
		return eng.Publish(cmd.OutOrStdout(), table, ranks)

	case "tcp":
		size := v.GetInt("size")
		c, err := connect(ctx, v, rank, size, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		table, err := eng.Run(ctx, c)
		if err != nil {
			return err
		}
		if rank != engine.Coordinator {
			return nil
		}
		return eng.Publish(cmd.OutOrStdout(), table, size)
	}
	return fmt.Errorf("%w: %q", errUnknownTransport, transport)
}

func runLocal(ctx context.Context, eng *engine.Engine, ranks int) (*report.Table, error) {
	var (
		mu    sync.Mutex
		table *report.Table
	)
	err := comm.Launch(ctx, ranks, func(ctx context.Context, c comm.Communicator) error {
		t, err := eng.Run(ctx, c)
		if err != nil {
			return fmt.Errorf("rank %d: %w", c.Rank(), err)
		}
		if c.Rank() == engine.Coordinator {
			mu.Lock()
			table = t
			mu.Unlock()
		}
		return nil
	})
	return table, err
}

func connect(ctx context.Context, v *viper.Viper, rank, size int, logger *slog.Logger) (comm.Communicator, error) {
	addr := v.GetString("coordinator")
	opts := []comm.Option{comm.WithToken(v.GetString("token")), comm.WithLogger(logger)}

	if rank == engine.Coordinator {
		coord, err := comm.Listen(addr, size, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("Waiting for ranks", "addr", coord.Addr().String(), "size", size)
		return coord.Accept(ctx)
	}
	logger.Info("Joining group", "coordinator", addr, "rank", rank, "size", size)
	return comm.Dial(ctx, addr, rank, size, opts...)
}
