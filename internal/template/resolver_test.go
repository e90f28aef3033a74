package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestResolve(t *testing.T) {
	vars := map[string]any{
		"name":  "gemiflow",
		"count": 3,
		"ratio": 0.5,
		"ok":    true,
		"user":  map[string]any{"email": "a@b.dev", "tags": []any{"admin", "beta"}},
		"items": []any{map[string]any{"id": "f1"}},
	}

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"no template", "plain text", "plain text"},
		{"single reference", "hello {{name}}", "hello gemiflow"},
		{"multiple references", "{{name}}: {{count}}", "gemiflow: 3"},
		{"float rendering", "r={{ratio}}", "r=0.5"},
		{"bool rendering", "ok={{ok}}", "ok=true"},
		{"nested key", "{{user.email}}", "a@b.dev"},
		{"array index", "{{user.tags[1]}}", "beta"},
		{"index then key", "{{items[0].id}}", "f1"},
		{"whitespace in token", "{{ name }}", "gemiflow"},
		{"object rendered as json", "{{items[0]}}", `{"id":"f1"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	vars := map[string]any{
		"name": "gemiflow",
		"user": map[string]any{"email": "a@b.dev"},
		"tags": []any{"a"},
	}

	cases := []struct {
		name  string
		input string
	}{
		{"missing variable", "{{missing}}"},
		{"missing key", "{{user.phone}}"},
		{"index out of bounds", "{{tags[3]}}"},
		{"traversal into scalar", "{{name.length}}"},
		{"unclosed token", "hello {{name"},
		{"empty token", "{{ }}"},
		{"trailing dot", "{{user.}}"},
		{"bad index", "{{tags[x]}}"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.input, vars)
			require.Error(t, err)

			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, schema.ErrCodeTemplate, fe.Code)
		})
	}
}

func TestResolveValuePreservesType(t *testing.T) {
	vars := map[string]any{
		"count": 3,
		"user":  map[string]any{"email": "a@b.dev"},
		"tags":  []any{"a", "b"},
	}

	got, err := ResolveValue("{{count}}", vars)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = ResolveValue("{{user}}", vars)
	require.NoError(t, err)
	assert.Equal(t, vars["user"], got)

	got, err = ResolveValue(" {{tags}} ", vars)
	require.NoError(t, err)
	assert.Equal(t, vars["tags"], got)

	// Anything beyond a single whole-string token falls back to string
	// substitution.
	got, err = ResolveValue("n={{count}}", vars)
	require.NoError(t, err)
	assert.Equal(t, "n=3", got)

	got, err = ResolveValue("{{count}}{{count}}", vars)
	require.NoError(t, err)
	assert.Equal(t, "33", got)
}

func TestResolveValueLiteral(t *testing.T) {
	got, err := ResolveValue("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestHasTemplate(t *testing.T) {
	assert.True(t, HasTemplate("{{x}}"))
	assert.True(t, HasTemplate("prefix {{x}} suffix"))
	assert.False(t, HasTemplate("plain"))
}
