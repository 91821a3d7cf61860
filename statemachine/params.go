package statemachine

import (
	"fmt"
	"time"
)

// Params are the parameters of a registry builder, as decoded from YAML.
type Params map[string]any

// GetString extracts a string parameter.
func (p Params) GetString(key string, required bool) (string, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return "", fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	return str, nil
}

// GetInt extracts an integer parameter.
func (p Params) GetInt(key string, required bool, defaultVal int) (int, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return 0, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return defaultVal, nil
	}

	n, ok := toInt(val)
	if !ok {
		return 0, fmt.Errorf("parameter %q must be an integer, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	return n, nil
}

// GetBool extracts a boolean parameter.
func (p Params) GetBool(key string, required bool, defaultVal bool) (bool, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return false, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return defaultVal, nil
	}

	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	return b, nil
}

// GetDuration extracts a duration parameter, given as a time.ParseDuration
// string or as an integer number of milliseconds.
func (p Params) GetDuration(key string, required bool, defaultVal time.Duration) (time.Duration, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return 0, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return defaultVal, nil
	}

	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}

		return d, nil
	default:
		ms, ok := toInt(val)
		if !ok {
			return 0, fmt.Errorf("parameter %q must be a duration, got %T: %w", key, val, ErrParameterTypeMismatch)
		}

		return time.Duration(ms) * time.Millisecond, nil
	}
}

// GetMap extracts a nested mapping parameter.
func (p Params) GetMap(key string, required bool) (map[string]any, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return nil, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return nil, nil
	}

	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a map, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	return m, nil
}

// GetSlice extracts a list parameter.
func (p Params) GetSlice(key string, required bool) ([]any, error) {
	val, exists := p[key]
	if !exists {
		if required {
			return nil, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return nil, nil
	}

	s, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a list, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	return s, nil
}
