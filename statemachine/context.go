package statemachine

import (
	"maps"
	"time"
)

// Context is the extended data carried by a machine. A committed Context is
// never mutated in place; every update produces a new map.
type Context map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil Context.
func (c Context) Clone() Context {
	clone := make(Context, len(c))
	maps.Copy(clone, c)

	return clone
}

// Get retrieves a value from the context.
func (c Context) Get(key string) (any, bool) {
	val, ok := c[key]

	return val, ok
}

// GetString retrieves a string value from the context.
func (c Context) GetString(key string) (string, bool) {
	val, ok := c[key]
	if !ok {
		return "", false
	}

	str, ok := val.(string)

	return str, ok
}

// GetBool retrieves a boolean value from the context.
func (c Context) GetBool(key string) (bool, bool) {
	val, ok := c[key]
	if !ok {
		return false, false
	}

	b, ok := val.(bool)

	return b, ok
}

// GetInt retrieves an integer value from the context. Values decoded from
// YAML or JSON arrive as int, int64 or float64 and are all accepted.
func (c Context) GetInt(key string) (int, bool) {
	val, ok := c[key]
	if !ok {
		return 0, false
	}

	return toInt(val)
}

// GetDuration retrieves a duration value, accepting time.Duration or a
// string in time.ParseDuration format.
func (c Context) GetDuration(key string) (time.Duration, bool) {
	val, ok := c[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)

		return d, err == nil
	default:
		return 0, false
	}
}

// With returns a copy of the context with key set to value.
func (c Context) With(key string, value any) Context {
	clone := c.Clone()
	clone[key] = value

	return clone
}

// Merge returns a copy of the context with the entries of other copied over
// it. Neither input is modified.
func (c Context) Merge(other Context) Context {
	clone := c.Clone()
	maps.Copy(clone, other)

	return clone
}

// Missing returns the keys that are absent from the context.
func (c Context) Missing(keys ...string) []string {
	var missing []string

	for _, key := range keys {
		if _, ok := c[key]; !ok {
			missing = append(missing, key)
		}
	}

	return missing
}

// overlay builds the effective context of a state: shared defaults, then the
// state's own defaults, then the resolved values.
func overlay(shared, state, resolved Context) Context {
	if len(shared) == 0 && len(state) == 0 {
		return resolved.Clone()
	}

	out := make(Context, len(shared)+len(state)+len(resolved))
	maps.Copy(out, shared)
	maps.Copy(out, state)
	maps.Copy(out, resolved)

	return out
}

func toInt(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true //nolint:gosec // context counters are small
	case uint64:
		return int(v), true //nolint:gosec // context counters are small
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}
