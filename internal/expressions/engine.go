// Package expressions hosts the expression engines the interpreter dispatches
// to: CEL for branch/loop conditions, Expr for set-node arithmetic, and GoJQ
// for json-node queries. All engines cache compiled programs and are safe for
// concurrent use.
package expressions

import "context"

// Engine evaluates an expression against a data scope.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
