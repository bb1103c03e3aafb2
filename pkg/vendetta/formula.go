package vendetta

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FormulaEnv is the environment production formulas are evaluated against.
// Formulas refer to the room level as Level, e.g. "int(10 * ((Level + 1) / 2) ** 2)".
type FormulaEnv struct {
	Level int
}

// Formula is a compiled per-level expression.
type Formula struct {
	src     string
	program *vm.Program
}

// CompileFormula parses and type-checks an expression over FormulaEnv.
func CompileFormula(src string) (*Formula, error) {
	prog, err := expr.Compile(src, expr.Env(FormulaEnv{}))
	if err != nil {
		return nil, fmt.Errorf("compile formula %q: %w", src, err)
	}
	return &Formula{src: src, program: prog}, nil
}

// Eval returns the formula value at the given level. Levels <= 0 yield 0.
func (f *Formula) Eval(level int) (float64, error) {
	if f == nil || level <= 0 {
		return 0, nil
	}
	out, err := expr.Run(f.program, FormulaEnv{Level: level})
	if err != nil {
		return 0, fmt.Errorf("eval formula %q at level %d: %w", f.src, level, err)
	}
	switch v := out.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, fmt.Errorf("formula %q returned %T, want a number", f.src, out)
}

func (f *Formula) String() string {
	if f == nil {
		return ""
	}
	return f.src
}
