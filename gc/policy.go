package gc

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Loggable describes one expired record candidate for reclamation.
type Loggable struct {
	Address   int64
	StoreName string
	AgeSecs   int64
}

// Policy is an optional CEL expression (spec.md's Non-goals exclude secondary indexes, not a
// filter over the GC's own sweep) letting an operator widen or narrow default expiry eligibility
// without a code change — grounded on the teacher's StoreInfo MapKeyIndexSpecification/
// LegacyCELexpression fields, which already evaluate CEL against store records.
type Policy struct {
	prg cel.Program
}

// NewPolicy compiles expr, which must evaluate to a bool given the variables age_seconds (int)
// and store (string). An empty expr disables filtering: every candidate is eligible.
func NewPolicy(expr string) (*Policy, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("age_seconds", cel.IntType),
		cel.Variable("store", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("gc: building CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("gc: compiling policy expression: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("gc: building CEL program: %w", err)
	}
	return &Policy{prg: prg}, nil
}

// Eligible reports whether l should be reclaimed under this policy. A nil Policy (no expression
// configured) accepts every candidate.
func (p *Policy) Eligible(l Loggable) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, _, err := p.prg.Eval(map[string]any{
		"age_seconds": l.AgeSecs,
		"store":       l.StoreName,
	})
	if err != nil {
		return false, fmt.Errorf("gc: evaluating policy expression: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("gc: policy expression did not evaluate to a bool")
	}
	return b, nil
}
