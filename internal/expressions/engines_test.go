package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestCELEngineEvaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	cases := []struct {
		expression string
		data       map[string]any
		want       any
	}{
		{"5 > 3", nil, true},
		{"2 + 2 == 5", nil, false},
		{`"a" + "b"`, nil, "ab"},
		{"vars.count > 3", map[string]any{"count": 5}, true},
		{"vars.count > 3 && vars.ok", map[string]any{"count": 5, "ok": true}, true},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(context.Background(), tc.expression, tc.data)
		require.NoError(t, err, "expression=%q", tc.expression)
		assert.Equal(t, tc.want, got, "expression=%q", tc.expression)
	}
}

func TestCELEngineErrors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "undeclared > 3", nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExpression, fe.Code)

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestCELEngineCachesPrograms(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	for range 3 {
		got, err := e.Evaluate(context.Background(), "1 < 2", nil)
		require.NoError(t, err)
		assert.Equal(t, true, got)
	}
	assert.Len(t, e.cache, 1)
}

func TestExprEngineEvaluate(t *testing.T) {
	e := NewExprEngine()

	cases := []struct {
		expression string
		data       map[string]any
		want       any
	}{
		{"count + 1", map[string]any{"count": 2}, 3},
		{"count * 2.5", map[string]any{"count": 2}, 5.0},
		{`greeting + " world"`, map[string]any{"greeting": "hello"}, "hello world"},
		{"missing ?? 7", nil, 7},
		{"count > 1 ? 'big' : 'small'", map[string]any{"count": 2}, "big"},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(context.Background(), tc.expression, tc.data)
		require.NoError(t, err, "expression=%q", tc.expression)
		assert.EqualValues(t, tc.want, got, "expression=%q", tc.expression)
	}
}

func TestExprEngineCompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "count +", map[string]any{"count": 1})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExpression, fe.Code)
}

func TestGoJQEngineRun(t *testing.T) {
	e := NewGoJQEngine()

	input := map[string]any{
		"items": []any{
			map[string]any{"name": "a", "size": 1},
			map[string]any{"name": "b", "size": 2},
		},
	}

	got, err := e.Run(context.Background(), ".items | length", input)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got)

	got, err = e.Run(context.Background(), "[.items[].size] | add", input)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)

	// Multiple outputs are collected.
	got, err = e.Run(context.Background(), ".items[].name", input)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	// No output yields nil.
	got, err = e.Run(context.Background(), ".items[] | select(.size > 10)", input)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoJQEngineErrors(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Run(context.Background(), ".[|", nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExpression, fe.Code)

	_, err = e.Run(context.Background(), ".a.b", "not an object")
	assert.Error(t, err)
}

func TestGoJQEngineBlocksEnv(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Run(context.Background(), "$ENV | length", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(""))
	assert.False(t, Truthy("false"))
	assert.False(t, Truthy("False"))
	assert.False(t, Truthy("0"))
	assert.True(t, Truthy("true"))
	assert.True(t, Truthy("yes"))
	assert.True(t, Truthy("1"))
}

func TestCoerceBool(t *testing.T) {
	assert.True(t, CoerceBool(true))
	assert.False(t, CoerceBool(false))
	assert.True(t, CoerceBool("yes"))
	assert.False(t, CoerceBool("false"))
	assert.True(t, CoerceBool(1))
	assert.False(t, CoerceBool(0))
	assert.True(t, CoerceBool(int64(2)))
	assert.False(t, CoerceBool(float64(0)))
	assert.False(t, CoerceBool(nil))
	assert.True(t, CoerceBool(map[string]any{}))
}
