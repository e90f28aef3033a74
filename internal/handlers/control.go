// Package handlers implements one engine.Handler per node kind, grouped by
// category: control flow, AI generation, drive operations, interactive
// prompts and integrations.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/expressions"
	"github.com/gemihub/gemiflow/internal/template"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// Control returns the handlers for the control-flow node kinds.
func Control() []engine.Handler {
	return []engine.Handler{
		&VariableHandler{},
		&SetHandler{},
		&IfHandler{},
		&WhileHandler{},
		&SleepHandler{},
	}
}

// VariableHandler declares a variable with an initial value. A value that is
// a single whole-string reference keeps the referenced value's type.
type VariableHandler struct{}

func (h *VariableHandler) Kind() schema.NodeType { return schema.NodeVariable }

func (h *VariableHandler) Execute(_ context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.VariableProps)
	value, err := template.ResolveValue(props.Value, nc.Variables)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"name": props.Name, "value": value},
		Output:  value,
		SaveTo:  props.Name,
		Summary: "declared " + props.Name,
	}, nil
}

// SetHandler assigns the result of an arithmetic expression to a variable.
// The expression sees the variable scope directly ("count + 1").
type SetHandler struct{}

func (h *SetHandler) Kind() schema.NodeType { return schema.NodeSet }

func (h *SetHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.SetProps)
	expression, err := template.Resolve(props.Expression, nc.Variables)
	if err != nil {
		return nil, err
	}
	value, err := nc.Services.Arithmetic.Evaluate(ctx, expression, nc.Variables)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"name": props.Name, "expression": expression},
		Output:  value,
		SaveTo:  props.Name,
		Summary: "set " + props.Name,
	}, nil
}

// IfHandler evaluates the condition and selects the labeled edge.
type IfHandler struct{}

func (h *IfHandler) Kind() schema.NodeType { return schema.NodeIf }

func (h *IfHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	result, resolved := evalCondition(ctx, nc, nc.Node.Props.(*schema.IfProps).Condition)
	return &engine.Result{
		Input:  map[string]any{"condition": resolved},
		Output: result,
		Branch: branchLabel(result),
	}, nil
}

// WhileHandler evaluates the loop condition on every visit.
type WhileHandler struct{}

func (h *WhileHandler) Kind() schema.NodeType { return schema.NodeWhile }

func (h *WhileHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	result, resolved := evalCondition(ctx, nc, nc.Node.Props.(*schema.WhileProps).Condition)
	return &engine.Result{
		Input:  map[string]any{"condition": resolved},
		Output: result,
		Branch: branchLabel(result),
	}, nil
}

// evalCondition resolves templates in the condition, evaluates the result as
// a CEL expression and coerces the outcome to a bool. Malformed conditions
// are coerced to false rather than failing the run. The resolved condition
// text is returned alongside the verdict for the step record.
func evalCondition(ctx context.Context, nc *engine.NodeContext, condition string) (bool, string) {
	resolved, err := template.Resolve(condition, nc.Variables)
	if err != nil {
		nc.Logger.WarnContext(ctx, "condition references unknown variable, treating as false",
			"condition", condition, "error", err)
		return false, condition
	}

	value, err := nc.Services.Conditions.Evaluate(ctx, resolved, nc.Variables)
	if err != nil {
		coerced := expressions.Truthy(strings.TrimSpace(resolved))
		nc.Logger.WarnContext(ctx, "condition is not a valid expression, coercing",
			"condition", resolved, "coerced", coerced, "error", err)
		return coerced, resolved
	}
	return expressions.CoerceBool(value), resolved
}

func branchLabel(result bool) string {
	if result {
		return schema.EdgeTrue
	}
	return schema.EdgeFalse
}

// SleepHandler pauses the execution. Duration accepts Go syntax ("1.5s") or
// a bare number of seconds. The wait ends early on cancellation.
type SleepHandler struct{}

func (h *SleepHandler) Kind() schema.NodeType { return schema.NodeSleep }

func (h *SleepHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.SleepProps)
	raw, err := template.Resolve(props.Duration, nc.Variables)
	if err != nil {
		return nil, err
	}
	d, err := parseDuration(raw)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "execution cancelled during sleep").WithCause(ctx.Err())
	}
	return &engine.Result{
		Input:   map[string]any{"duration": raw},
		Output:  d.String(),
		Summary: "slept " + d.String(),
	}, nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "sleep duration %q is negative", raw)
		}
		return d, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs < 0 {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "sleep duration %q is negative", raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid sleep duration %q", raw)
}
