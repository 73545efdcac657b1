// Package patch applies incremental deltas to nested fields of JSON records.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrPathNotFound is returned when an intermediate segment is missing or not an object.
	ErrPathNotFound = errors.New("patch path not found")

	// ErrTypeMismatch is returned when the leaf holds a value of the wrong type.
	ErrTypeMismatch = errors.New("patch type mismatch")

	// ErrInvalidOp is returned for operations that carry nothing to apply.
	ErrInvalidOp = errors.New("invalid patch operation")
)

// Op is a mutation of a single leaf.
type Op interface {
	apply(current any, exists bool) (any, error)
}

// NumberOp changes a numeric leaf. Increment and Decrement compose; Set wins over both.
type NumberOp struct {
	Increment float64
	Decrement float64
	Set       *float64
}

// StringOp replaces a string leaf.
type StringOp struct {
	Set string
}

// Delta maps dot-paths to operations.
type Delta map[string]Op

// Increment adds n to a numeric field.
func Increment(n float64) NumberOp {
	return NumberOp{Increment: n}
}

// Decrement subtracts n from a numeric field.
func Decrement(n float64) NumberOp {
	return NumberOp{Decrement: n}
}

// SetNumber overwrites a numeric field.
func SetNumber(n float64) NumberOp {
	return NumberOp{Set: &n}
}

// SetString overwrites a string field.
func SetString(s string) StringOp {
	return StringOp{Set: s}
}

// Move shifts n from one counter to another in a single delta.
func Move(from, to string, n float64) Delta {
	if from == to {
		return Delta{}
	}

	return Delta{from: Decrement(n), to: Increment(n)}
}

// Merge folds several deltas together. Numeric ops on the same path compose;
// any other collision keeps the last op.
func Merge(deltas ...Delta) Delta {
	out := Delta{}

	for _, d := range deltas {
		for path, op := range d {
			prev, ok := out[path].(NumberOp)
			next, isNum := op.(NumberOp)

			if ok && isNum && prev.Set == nil && next.Set == nil {
				out[path] = NumberOp{Increment: prev.Increment + next.Increment, Decrement: prev.Decrement + next.Decrement}

				continue
			}

			out[path] = op
		}
	}

	return out
}

func (o NumberOp) apply(current any, exists bool) (any, error) {
	if o.Set != nil {
		return *o.Set, nil
	}

	base := 0.0

	if exists && current != nil {
		n, ok := toFloat(current)
		if !ok {
			return nil, fmt.Errorf("%w: expected number, got %T", ErrTypeMismatch, current)
		}

		base = n
	}

	return base + o.Increment - o.Decrement, nil
}

func (o StringOp) apply(current any, exists bool) (any, error) {
	if exists && current != nil {
		if _, ok := current.(string); !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, current)
		}
	}

	return o.Set, nil
}

// Apply returns a copy of record with delta applied. The input is never modified.
// Paths are applied in lexical order so results are deterministic.
func Apply(record map[string]any, delta Delta) (map[string]any, error) {
	out := deepCopy(record)
	if len(delta) == 0 {
		return out, nil
	}

	for _, path := range slices.Sorted(maps.Keys(delta)) {
		op := delta[path]
		if op == nil {
			return nil, fmt.Errorf("%w at %q", ErrInvalidOp, path)
		}

		segments := strings.Split(path, ".")
		target := out

		for _, seg := range segments[:len(segments)-1] {
			next, ok := target[seg].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q at segment %q", ErrPathNotFound, path, seg)
			}

			target = next
		}

		leaf := segments[len(segments)-1]
		current, exists := target[leaf]

		value, err := op.apply(current, exists)
		if err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", path, err)
		}

		target[leaf] = value
	}

	return out, nil
}

// ApplyTo applies delta to any JSON-serializable value by round-tripping it through a map.
func ApplyTo[T any](value T, delta Delta) (T, error) {
	var zero T

	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("failed to encode record: %w", err)
	}

	record := map[string]any{}

	err = json.Unmarshal(data, &record)
	if err != nil {
		return zero, fmt.Errorf("failed to decode record: %w", err)
	}

	patched, err := Apply(record, delta)
	if err != nil {
		return zero, err
	}

	data, err = json.Marshal(patched)
	if err != nil {
		return zero, fmt.Errorf("failed to encode patched record: %w", err)
	}

	var result T

	err = json.Unmarshal(data, &result)
	if err != nil {
		return zero, fmt.Errorf("failed to decode patched record: %w", err)
	}

	return result, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

func deepCopy(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = copyValue(v)
	}

	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}

		return out
	default:
		return v
	}
}
