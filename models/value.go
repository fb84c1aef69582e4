// Package models defines the scalar value contract shared across all layers
// of the poller. A data-point value is always one of a small set of native Go
// types; the engine, transform, output and protocol adapter packages depend on
// this package and nothing here depends on any other internal package.
package models

import "fmt"

// Value is the dynamic type carried by a data point after decoding and
// transformation. It is always one of:
//
//	int64 | uint64 | float64 | bool | string
//
// nil is the skip sentinel: a transform that returns nil suppresses both
// storage and emission for the current cycle.
type Value = any

// Equal reports whether two data-point values are the same for the purpose of
// change detection. Numeric values compare by value, not by representation:
// int64(5), uint64(5) and float64(5) are all equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}

	af, aNum := AsFloat(a)
	bf, bNum := AsFloat(b)
	if aNum && bNum {
		return af == bf
	}

	return a == b
}

// AsFloat converts a numeric Value to float64. The second return is false for
// non-numeric values (bool, string, nil).
func AsFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int:
		return float64(x), true
	case uint:
		return float64(x), true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	default:
		return 0, false
	}
}

// AsUint64 converts a non-negative integer Value to uint64. Floats are
// accepted only when integral. An error identifies values that cannot feed a
// wrap-around counter computation.
func AsUint64(v Value) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("value %v is not a non-negative integer", x)
		}
		return uint64(x), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// Truthy reports whether a value counts as "on" for bit coercions.
// Booleans map directly; numerics are true when nonzero.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	default:
		f, ok := AsFloat(v)
		return ok && f != 0
	}
}
