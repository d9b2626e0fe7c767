// Package policy evaluates user budgets against the aggregated result table.
// A budget is a CEL expression over one row; a row matching the expression
// violates the budget.
package policy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/DrSkyle/graphbench/pkg/config"
	"github.com/DrSkyle/graphbench/pkg/engine/report"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// ErrBudgetExceeded is returned by Check when at least one row matches a budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Violation is one (budget, row) match.
type Violation struct {
	BudgetID  string
	Condition string
	Row       report.Row
}

type compiled struct {
	budget  config.Budget
	program cel.Program
}

// CELEngine compiles budgets once and evaluates them per row.
type CELEngine struct {
	env      *cel.Env
	programs []compiled
}

// NewCELEngine declares the row variables: size (int), dfs and bfs
// (double, seconds) and ranks (int).
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("size", decls.Int),
			decls.NewVar("dfs", decls.Double),
			decls.NewVar("bfs", decls.Double),
			decls.NewVar("ranks", decls.Int),
		),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &CELEngine{env: env}, nil
}

// Compile adds budgets to the engine. Every condition must type-check to bool.
func (e *CELEngine) Compile(budgets []config.Budget) error {
	for _, b := range budgets {
		if b.ID == "" {
			b.ID = fmt.Sprintf("budget_%d", len(e.programs))
		}
		ast, issues := e.env.Compile(b.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("budget %s compilation error: %w", b.ID, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return fmt.Errorf("budget %s must evaluate to bool, got %s", b.ID, ast.OutputType())
		}

		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("budget %s program creation error: %w", b.ID, err)
		}
		e.programs = append(e.programs, compiled{budget: b, program: prg})
	}
	return nil
}

// Len returns the number of compiled budgets.
func (e *CELEngine) Len() int {
	return len(e.programs)
}

// Evaluate returns the budgets matched by one row, in compile order.
func (e *CELEngine) Evaluate(row report.Row, ranks int) []Violation {
	vars := map[string]any{
		"size":  int64(row.GraphSize),
		"dfs":   row.DFSSeconds,
		"bfs":   row.BFSSeconds,
		"ranks": int64(ranks),
	}

	var matches []Violation
	for _, c := range e.programs {
		out, _, err := c.program.Eval(vars)
		if err != nil {
			slog.Error("Budget evaluation failed", "budget_id", c.budget.ID, "error", err)
			continue
		}
		if match, ok := out.Value().(bool); ok && match {
			matches = append(matches, Violation{
				BudgetID:  c.budget.ID,
				Condition: c.budget.Condition,
				Row:       row,
			})
		}
	}
	return matches
}

// Check evaluates every row of t. The error wraps ErrBudgetExceeded when
// any violation is found.
func (e *CELEngine) Check(t *report.Table, ranks int) ([]Violation, error) {
	var all []Violation
	for _, row := range t.Rows {
		all = append(all, e.Evaluate(row, ranks)...)
	}
	if len(all) > 0 {
		v := all[0]
		return all, fmt.Errorf("%w: %d violation(s), first %s (%s) at size %d",
			ErrBudgetExceeded, len(all), v.BudgetID, v.Condition, v.Row.GraphSize)
	}
	return nil, nil
}
