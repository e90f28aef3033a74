package expressions

// Truthy applies the condition coercion rule for branch/loop nodes: a string
// is true unless it is empty, "false", or "0" (case-insensitive on "false").
func Truthy(s string) bool {
	switch s {
	case "", "false", "False", "FALSE", "0":
		return false
	}
	return true
}

// CoerceBool converts an evaluated condition result to a boolean. Strings go
// through Truthy; numbers are true when non-zero; nil is false.
func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return Truthy(val)
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	case nil:
		return false
	default:
		return true
	}
}
