package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// planFile is the HCL shape of a benchmark plan:
//
//	benchmark {
//	  sizes      = [100000, 300000]
//	  avg_degree = 4
//	  seed       = env.GRAPHBENCH_SEED
//	  strategy   = "broadcast"
//	}
//
//	budget "dfs_fast" {
//	  condition = "dfs > 2.0"
//	}
type planFile struct {
	Benchmark *benchmarkBlock `hcl:"benchmark,block"`
	Budgets   []budgetBlock   `hcl:"budget,block"`
}

type benchmarkBlock struct {
	Sizes       []int   `hcl:"sizes,optional"`
	AvgDegree   *int    `hcl:"avg_degree,optional"`
	Seed        *int64  `hcl:"seed,optional"`
	Strategy    *string `hcl:"strategy,optional"`
	Verify      *bool   `hcl:"verify,optional"`
	MemoryLimit *int64  `hcl:"memory_limit,optional"`
}

type budgetBlock struct {
	ID        string `hcl:"id,label"`
	Condition string `hcl:"condition"`
}

// LoadPlan reads an HCL plan file and overlays it on base. Attributes that
// the plan omits keep their base value; budgets are appended.
func LoadPlan(path string, base BenchConfig) (BenchConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(src, path, base)
}

// ParsePlan decodes plan source. The expression context exposes the process
// environment as env.<NAME>.
func ParsePlan(src []byte, filename string, base BenchConfig) (BenchConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return base, fmt.Errorf("parse plan: %w", diags)
	}

	var plan planFile
	if diags := gohcl.DecodeBody(file.Body, planEvalContext(), &plan); diags.HasErrors() {
		return base, fmt.Errorf("decode plan: %w", diags)
	}

	cfg := base
	if b := plan.Benchmark; b != nil {
		if len(b.Sizes) > 0 {
			cfg.Sizes = b.Sizes
		}
		if b.AvgDegree != nil {
			cfg.AvgDegree = *b.AvgDegree
		}
		if b.Seed != nil {
			cfg.Seed = *b.Seed
		}
		if b.Strategy != nil {
			s, err := ParseStrategy(*b.Strategy)
			if err != nil {
				return base, err
			}
			cfg.Strategy = s
		}
		if b.Verify != nil {
			cfg.Verify = *b.Verify
		}
		if b.MemoryLimit != nil {
			cfg.MemoryLimit = *b.MemoryLimit
		}
	}
	for _, b := range plan.Budgets {
		cfg.Budgets = append(cfg.Budgets, Budget{ID: b.ID, Condition: b.Condition})
	}
	return cfg, nil
}

func planEvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}
