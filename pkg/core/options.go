package core

import (
	"fmt"
	"strconv"
)

// Options is the flat, named option bag handed to samplers and photon maps at
// prepare time. Keys are dotted names such as "aa.min" or "caustics.gather".
// Values may be any numeric kind, bool or string; the typed getters convert
// between them and fall back to the caller's default on a missing key or an
// unconvertible value.
type Options map[string]interface{}

// NewOptions creates an empty option bag
func NewOptions() Options {
	return Options{}
}

// Set stores a value and returns the bag so calls can be chained
func (o Options) Set(key string, value interface{}) Options {
	o[key] = value
	return o
}

// Has reports whether key is present
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// GetInt returns key as an int
func (o Options) GetInt(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint32:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// GetFloat returns key as a float64
func (o Options) GetFloat(key string, def float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetBool returns key as a bool
func (o Options) GetBool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// GetString returns key as a string. Non-string values are formatted with %v.
func (o Options) GetString(key string, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
