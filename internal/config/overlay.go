package config

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ConfigValue represents a configuration value that may or may not have been set
// by the client. Unset values resolve to a default.
//
// Example usage:
//
//	retries := ParsePositiveIntConfigValue(params, "cloudFetchMaxRetries")
//	n := retries.Resolve(DefaultMaxRetries)
type ConfigValue[T any] struct {
	// nil = not set by client
	value *T
}

// NewConfigValue creates a ConfigValue with a client-set value.
func NewConfigValue[T any](value T) ConfigValue[T] {
	return ConfigValue[T]{value: &value}
}

// IsSet returns true if the client explicitly set this configuration value.
func (cv ConfigValue[T]) IsSet() bool {
	return cv.value != nil
}

// Get returns the client-set value and whether it was set.
// If not set, returns zero value and false.
func (cv ConfigValue[T]) Get() (T, bool) {
	if cv.value != nil {
		return *cv.value, true
	}
	var zero T
	return zero, false
}

// Resolve returns the client value if set, otherwise defaultValue.
func (cv ConfigValue[T]) Resolve(defaultValue T) T {
	if cv.value != nil {
		return *cv.value
	}
	return defaultValue
}

// ParseBoolConfigValue parses a string value into a ConfigValue[bool].
// Returns unset ConfigValue if the parameter is not present or not a boolean.
func ParseBoolConfigValue(params map[string]string, key string) ConfigValue[bool] {
	if v, ok := lookup(params, key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return NewConfigValue(b)
		}
	}
	return ConfigValue[bool]{}
}

// ParsePositiveIntConfigValue parses a string value into a ConfigValue[int].
// Returns unset ConfigValue if the parameter is not present, not an integer,
// or not greater than zero.
func ParsePositiveIntConfigValue(params map[string]string, key string) ConfigValue[int] {
	if v, ok := lookup(params, key); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return NewConfigValue(i)
		}
	}
	return ConfigValue[int]{}
}

// ParsePositiveDurationConfigValue reads a whole number of unit from params.
// Returns unset ConfigValue if the value is not a positive integer or the
// duration would not fit in a time.Duration.
func ParsePositiveDurationConfigValue(params map[string]string, key string, unit time.Duration) ConfigValue[time.Duration] {
	if v, ok := lookup(params, key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n <= math.MaxInt64/int64(unit) {
			return NewConfigValue(time.Duration(n) * unit)
		}
	}
	return ConfigValue[time.Duration]{}
}

// connection property names are matched case insensitively
func lookup(params map[string]string, key string) (string, bool) {
	if v, ok := params[key]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
