package governance

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Rule is a compiled CEL expression over url, host, scheme and steps.
type Rule struct {
	Expr    string
	program cel.Program
}

func newRuleEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("url", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("steps", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}
	return env, nil
}

// CompileRule parses and type-checks expr. The expression must be boolean.
func CompileRule(expr string) (*Rule, error) {
	env, err := newRuleEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error parsing rule %q: %w", expr, issues.Err())
	}

	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error type-checking rule %q: %w", expr, issues.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q does not evaluate to a boolean", expr)
	}

	program, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("error compiling rule %q: %w", expr, err)
	}
	return &Rule{Expr: expr, program: program}, nil
}

// Eval reports whether the rule matches vars.
func (r *Rule) Eval(vars map[string]any) (bool, error) {
	result, _, err := r.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("error evaluating rule %q: %w", r.Expr, err)
	}
	if result.Type() != types.BoolType {
		return false, fmt.Errorf("rule %q did not evaluate to a boolean", r.Expr)
	}
	return result.Value().(bool), nil
}
