// Package config defines the benchmark configuration, its defaults and the
// validation that runs on every rank before the first collective call.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DrSkyle/graphbench/pkg/graph"
)

// Strategy selects how ranks obtain the graph of a configuration.
type Strategy string

const (
	// StrategyRegenerate has every rank build the graph from the shared seed.
	StrategyRegenerate Strategy = "regenerate"
	// StrategyBroadcast has rank 0 build the graph and broadcast it vertex by vertex.
	StrategyBroadcast Strategy = "broadcast"
)

// ErrUnknownStrategy is returned for a strategy other than regenerate or broadcast.
var ErrUnknownStrategy = errors.New("unknown distribution strategy")

// Budget is a named CEL condition evaluated against every result row.
// A row matching the condition violates the budget.
type Budget struct {
	ID        string `mapstructure:"id" yaml:"id" json:"id"`
	Condition string `mapstructure:"condition" yaml:"condition" json:"condition"`
}

// BenchConfig holds one benchmark run.
type BenchConfig struct {
	// Sizes are the vertex counts benchmarked, in order.
	Sizes []int `mapstructure:"sizes" yaml:"sizes" json:"sizes"`
	// AvgDegree is the per-vertex neighbor quota of the generator.
	AvgDegree int `mapstructure:"avg_degree" yaml:"avg_degree" json:"avg_degree"`
	// Seed feeds the generator; all ranks must agree on it.
	Seed     int64    `mapstructure:"seed" yaml:"seed" json:"seed"`
	Strategy Strategy `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	// Verify checks adjacency symmetry after the graph is replicated.
	Verify bool `mapstructure:"verify" yaml:"verify" json:"verify"`
	// MemoryLimit caps the adjacency footprint in bytes. Zero defers to the
	// runtime soft memory limit.
	MemoryLimit int64    `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
	Budgets     []Budget `mapstructure:"budgets" yaml:"budgets" json:"budgets"`
}

// Defaults.
const (
	DefaultAvgDegree = 4
	DefaultSeed      = 42
)

// DefaultSizes are the vertex counts benchmarked when none are given.
func DefaultSizes() []int {
	return []int{100000, 300000, 1000000}
}

// DefaultBenchConfig returns default benchmark values.
func DefaultBenchConfig() BenchConfig {
	return BenchConfig{
		Sizes:     DefaultSizes(),
		AvgDegree: DefaultAvgDegree,
		Seed:      DefaultSeed,
		Strategy:  StrategyRegenerate,
	}
}

// ParseStrategy maps a flag value onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyRegenerate, "":
		return StrategyRegenerate, nil
	case StrategyBroadcast:
		return StrategyBroadcast, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Validate rejects configurations that would fail or stall mid-run. Every
// rank calls it before the first collective so that a bad configuration
// aborts the whole group instead of deadlocking part of it.
func (c BenchConfig) Validate() error {
	if len(c.Sizes) == 0 {
		return fmt.Errorf("%w: no graph sizes configured", graph.ErrInvalidConfiguration)
	}
	for _, n := range c.Sizes {
		if err := graph.ValidateParams(n, c.AvgDegree); err != nil {
			return fmt.Errorf("size %d: %w", n, err)
		}
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("%w: memory limit %d", graph.ErrInvalidConfiguration, c.MemoryLimit)
	}
	for i, b := range c.Budgets {
		if strings.TrimSpace(b.Condition) == "" {
			return fmt.Errorf("%w: budget %d (%s) has no condition", graph.ErrInvalidConfiguration, i, b.ID)
		}
	}
	return nil
}
