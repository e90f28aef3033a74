package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestVariableHandlerLiteral(t *testing.T) {
	h := &VariableHandler{}
	nc := testContext(t, testNode(schema.NodeVariable, &schema.VariableProps{Name: "greeting", Value: "hello"}), nil)

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
	assert.Equal(t, "greeting", res.SaveTo)
}

func TestVariableHandlerKeepsReferencedType(t *testing.T) {
	h := &VariableHandler{}
	nc := testContext(t, testNode(schema.NodeVariable, &schema.VariableProps{Name: "copy", Value: "{{count}}"}),
		map[string]any{"count": 7})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Output)
}

func TestVariableHandlerInterpolation(t *testing.T) {
	h := &VariableHandler{}
	nc := testContext(t, testNode(schema.NodeVariable, &schema.VariableProps{Name: "msg", Value: "count is {{count}}"}),
		map[string]any{"count": 7})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "count is 7", res.Output)
}

func TestSetHandlerArithmetic(t *testing.T) {
	h := &SetHandler{}
	nc := testContext(t, testNode(schema.NodeSet, &schema.SetProps{Name: "count", Expression: "count + 1"}),
		map[string]any{"count": 2})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Output)
	assert.Equal(t, "count", res.SaveTo)
	assert.Equal(t, map[string]any{"name": "count", "expression": "count + 1"}, res.Input)
}

func TestSetHandlerStringConcat(t *testing.T) {
	h := &SetHandler{}
	nc := testContext(t, testNode(schema.NodeSet, &schema.SetProps{Name: "msg", Expression: `"{{name}}" + "!"`}),
		map[string]any{"name": "world"})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "world!", res.Output)
}

func TestSetHandlerInvalidExpression(t *testing.T) {
	h := &SetHandler{}
	nc := testContext(t, testNode(schema.NodeSet, &schema.SetProps{Name: "x", Expression: "count +"}),
		map[string]any{"count": 2})

	_, err := h.Execute(context.Background(), nc)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExpression, fe.Code)
}

func TestIfHandlerBranches(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		vars      map[string]any
		want      string
	}{
		{"comparison true", "{{x}} > 3", map[string]any{"x": 5}, schema.EdgeTrue},
		{"comparison false", "{{x}} > 3", map[string]any{"x": 2}, schema.EdgeFalse},
		{"vars map access", "vars.x > 3", map[string]any{"x": 5}, schema.EdgeTrue},
		{"boolean literal", "false", nil, schema.EdgeFalse},
		{"unknown variable treated as false", "{{missing}} > 3", nil, schema.EdgeFalse},
		{"non-expression coerced truthy", "yes", nil, schema.EdgeTrue},
		{"zero string coerced false", "0", nil, schema.EdgeFalse},
		{"resolved false string", "{{flag}}", map[string]any{"flag": "false"}, schema.EdgeFalse},
	}

	h := &IfHandler{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nc := testContext(t, testNode(schema.NodeIf, &schema.IfProps{Condition: tc.condition}), tc.vars)
			res, err := h.Execute(context.Background(), nc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Branch)
		})
	}
}

func TestWhileHandlerBranch(t *testing.T) {
	h := &WhileHandler{}
	nc := testContext(t, testNode(schema.NodeWhile, &schema.WhileProps{Condition: "{{n}} < 10"}),
		map[string]any{"n": 4})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, schema.EdgeTrue, res.Branch)
	assert.Equal(t, map[string]any{"condition": "4 < 10"}, res.Input)

	nc.Variables["n"] = 12
	res, err = h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, schema.EdgeFalse, res.Branch)
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"150ms", 150 * time.Millisecond, false},
		{"1.5s", 1500 * time.Millisecond, false},
		{"2", 2 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{" 3 ", 3 * time.Second, false},
		{"-1s", 0, true},
		{"-2", 0, true},
		{"soon", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		d, err := parseDuration(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, "raw=%q", tc.raw)
			continue
		}
		require.NoError(t, err, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, d, "raw=%q", tc.raw)
	}
}

func TestSleepHandler(t *testing.T) {
	h := &SleepHandler{}
	nc := testContext(t, testNode(schema.NodeSleep, &schema.SleepProps{Duration: "10ms"}), nil)

	start := time.Now()
	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, "10ms", res.Output)
}

func TestSleepHandlerCancelled(t *testing.T) {
	h := &SleepHandler{}
	nc := testContext(t, testNode(schema.NodeSleep, &schema.SleepProps{Duration: "10s"}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := h.Execute(ctx, nc)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCancelled, fe.Code)
}
