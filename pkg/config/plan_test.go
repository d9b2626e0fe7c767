package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
benchmark {
  sizes      = [1000, 5000]
  avg_degree = 3
  seed       = env.GRAPHBENCH_TEST_SEED
  strategy   = "broadcast"
  verify     = true
}

budget "dfs_slow" {
  condition = "dfs > 2.0"
}

budget "bfs_slow" {
  condition = "bfs > 2.0 && size >= 1000"
}
`

func TestParsePlan(t *testing.T) {
	t.Setenv("GRAPHBENCH_TEST_SEED", "7")

	cfg, err := ParsePlan([]byte(samplePlan), "plan.hcl", DefaultBenchConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{1000, 5000}, cfg.Sizes)
	assert.Equal(t, 3, cfg.AvgDegree)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, StrategyBroadcast, cfg.Strategy)
	assert.True(t, cfg.Verify)
	require.Len(t, cfg.Budgets, 2)
	assert.Equal(t, Budget{ID: "dfs_slow", Condition: "dfs > 2.0"}, cfg.Budgets[0])
	require.NoError(t, cfg.Validate())
}

func TestParsePlan_KeepsBaseForOmittedAttributes(t *testing.T) {
	cfg, err := ParsePlan([]byte("benchmark {\n  avg_degree = 2\n}\n"), "partial.hcl", DefaultBenchConfig())
	require.NoError(t, err)

	assert.Equal(t, DefaultSizes(), cfg.Sizes)
	assert.Equal(t, 2, cfg.AvgDegree)
	assert.Equal(t, int64(DefaultSeed), cfg.Seed)
	assert.Equal(t, StrategyRegenerate, cfg.Strategy)
}

func TestParsePlan_Errors(t *testing.T) {
	base := DefaultBenchConfig()

	_, err := ParsePlan([]byte("benchmark {"), "broken.hcl", base)
	assert.Error(t, err)

	_, err = ParsePlan([]byte("benchmark {\n  strategy = \"gossip\"\n}\n"), "bad.hcl", base)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = ParsePlan([]byte("unknown_block {}\n"), "unknown.hcl", base)
	assert.Error(t, err)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.hcl")
	require.NoError(t, os.WriteFile(path, []byte("benchmark {\n  sizes = [64]\n  seed = 3\n}\n"), 0o600))

	cfg, err := LoadPlan(path, DefaultBenchConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{64}, cfg.Sizes)
	assert.Equal(t, int64(3), cfg.Seed)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.hcl"), DefaultBenchConfig())
	assert.Error(t, err)
}
