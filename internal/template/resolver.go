// Package template resolves {{...}} references in node properties against
// the execution's variable scope.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// Resolve substitutes every {{...}} token in input with the referenced
// value rendered inline. Supported forms: {{name}}, {{obj.key}}, {{arr[0]}}
// and nested combinations ({{a.b[0].c}}), resolved left to right.
//
// An unresolved reference (missing variable, missing key, index out of
// bounds, traversal into a scalar) raises a TEMPLATE_ERROR. Rendering empty
// strings instead would hide authoring mistakes; call sites that want softer
// behavior (condition coercion) handle the error themselves.
func Resolve(input string, vars map[string]any) (string, error) {
	if !HasTemplate(input) {
		return input, nil
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "{{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 2

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeTemplate, "unclosed {{ reference")
		}
		end += start

		expr := strings.TrimSpace(input[start:end])
		if expr == "" {
			return "", schema.NewError(schema.ErrCodeTemplate, "empty variable reference: {{ }}")
		}

		val, err := lookup(expr, vars)
		if err != nil {
			return "", err
		}
		result.WriteString(renderInline(val))

		i = end + 2
	}

	return result.String(), nil
}

// ResolveValue resolves input, preserving the referenced value's type when
// the whole string is a single {{...}} token. Otherwise it behaves like
// Resolve and returns the substituted string.
func ResolveValue(input string, vars map[string]any) (any, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if inner != "" && !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			return lookup(inner, vars)
		}
	}
	return Resolve(input, vars)
}

// HasTemplate reports whether s contains any {{...}} reference.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// lookup resolves a single reference path like "a.b[0].c" against vars.
func lookup(expr string, vars map[string]any) (any, error) {
	segments, err := splitPath(expr)
	if err != nil {
		return nil, err
	}

	if vars == nil {
		return nil, missingErr(expr, segments[0].key)
	}

	// First segment must be a variable name.
	head := segments[0]
	if head.key == "" {
		return nil, schema.NewErrorf(schema.ErrCodeTemplate, "reference %q must start with a variable name", expr)
	}
	current, ok := vars[head.key]
	if !ok {
		return nil, missingErr(expr, head.key)
	}

	for _, seg := range segments[1:] {
		if seg.key != "" {
			m, ok := asMap(current)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeTemplate,
					"cannot access %q in {{%s}}: value is not an object (type %T)", seg.key, expr, current)
			}
			val, ok := m[seg.key]
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeTemplate,
					"key %q not found in {{%s}}", seg.key, expr)
			}
			current = val
			continue
		}

		arr, ok := asSlice(current)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"cannot index [%d] in {{%s}}: value is not an array (type %T)", seg.index, expr, current)
		}
		if seg.index < 0 || seg.index >= len(arr) {
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"index %d out of bounds in {{%s}} (length %d)", seg.index, expr, len(arr))
		}
		current = arr[seg.index]
	}

	return current, nil
}

// segment is one path element: either a member key or an array index.
type segment struct {
	key   string
	index int
}

// splitPath tokenizes "a.b[0].c" into [{a} {b} {[0]} {c}].
func splitPath(expr string) ([]segment, error) {
	var segs []segment
	rest := expr

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			if rest == "" {
				return nil, schema.NewErrorf(schema.ErrCodeTemplate, "trailing '.' in {{%s}}", expr)
			}
		case '[':
			close := strings.IndexByte(rest, ']')
			if close == -1 {
				return nil, schema.NewErrorf(schema.ErrCodeTemplate, "unclosed '[' in {{%s}}", expr)
			}
			idx, err := strconv.Atoi(rest[1:close])
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeTemplate,
					"invalid array index %q in {{%s}}", rest[1:close], expr)
			}
			segs = append(segs, segment{index: idx})
			rest = rest[close+1:]
		default:
			stop := strings.IndexAny(rest, ".[")
			if stop == -1 {
				stop = len(rest)
			}
			segs = append(segs, segment{key: rest[:stop]})
			rest = rest[stop:]
		}
	}

	if len(segs) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeTemplate, "empty reference path in {{%s}}", expr)
	}
	return segs, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func missingErr(expr, name string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeTemplate,
		"variable %q not found in {{%s}}", name, expr).
		WithDetails(map[string]any{"expression": expr})
}

// renderInline converts a resolved value to its inline string form. Strings
// are embedded as-is; complex values are JSON-encoded.
func renderInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
