// Package transform implements the per-data-point numeric transformation
// chain applied between decoding and emission.
//
// A chain is built once at engine init from the configuration and then
// applied to every decoded value of its data point. Each step is a small
// value type carrying its captured parameters; the chain folds the decoded
// value through the steps in order. A nil result is the skip sentinel: it
// short-circuits the chain and suppresses emission for the current cycle.
package transform

import (
	"fmt"
	"math"

	"github.com/edgewatch/edgepull/decode"
	"github.com/edgewatch/edgepull/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Spec is the YAML form of a single transform step. Pointer fields distinguish
// "absent" from a zero value so that missing parameters are init errors.
type Spec struct {
	// Type selects the step: speed, multiply, divide, round, bit2int, int2bit.
	Type string `yaml:"type"`

	// Multiplier is required for multiply.
	Multiplier *float64 `yaml:"multiplier"`

	// Divisor is required for divide and must be nonzero.
	Divisor *float64 `yaml:"divisor"`

	// Digits is required for round. 0 rounds to an integer but keeps the
	// float type.
	Digits *int `yaml:"digits"`

	// Interval is the minimum seconds between speed samples (default 1).
	Interval *float64 `yaml:"interval"`

	// DataType optionally overrides the counter width for speed
	// (uint8|uint16|uint32|uint64). Adapters without typed decoding (SNMP)
	// rely on this; register adapters inherit the decode type.
	DataType string `yaml:"data-type"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Steps
// ─────────────────────────────────────────────────────────────────────────────

// Step is one bound transformation. Apply returns the transformed value or
// nil to skip the rest of the chain for this cycle.
type Step interface {
	Apply(v models.Value) (models.Value, error)
}

// speedStep computes the rate of change of a wrap-around counter.
type speedStep struct {
	id          string
	minInterval float64
	max         uint64
	cache       *SpeedCache
	clock       func() float64 // last pull time, monotonic seconds
}

func (s speedStep) Apply(v models.Value) (models.Value, error) {
	cur, err := models.AsUint64(v)
	if err != nil {
		return nil, fmt.Errorf("speed %s: %w", s.id, err)
	}
	now := s.clock()

	prev, ok := s.cache.lookup(s.id)
	if !ok {
		s.cache.store(s.id, cur, now)
		return float64(0), nil
	}

	dt := now - prev.Time
	if dt < s.minInterval || dt <= 0 {
		// Too soon: skip this sample and keep the previous state intact.
		return nil, nil
	}

	var dv uint64
	if cur >= prev.Value {
		dv = cur - prev.Value
	} else {
		// Counter wrapped once.
		dv = s.max - prev.Value + cur
	}
	s.cache.store(s.id, cur, now)
	return float64(dv) / dt, nil
}

// multiplyStep scales the value by a constant factor.
type multiplyStep struct{ factor float64 }

func (s multiplyStep) Apply(v models.Value) (models.Value, error) {
	f, ok := models.AsFloat(v)
	if !ok {
		return nil, fmt.Errorf("multiply: value %v (%T) is not numeric", v, v)
	}
	return f * s.factor, nil
}

// divideStep divides the value by a constant, nonzero divisor.
type divideStep struct{ divisor float64 }

func (s divideStep) Apply(v models.Value) (models.Value, error) {
	f, ok := models.AsFloat(v)
	if !ok {
		return nil, fmt.Errorf("divide: value %v (%T) is not numeric", v, v)
	}
	return f / s.divisor, nil
}

// roundStep rounds half-to-even at a fixed decimal precision. digits == 0
// rounds to an integer while keeping the float type.
type roundStep struct{ digits int }

func (s roundStep) Apply(v models.Value) (models.Value, error) {
	f, ok := models.AsFloat(v)
	if !ok {
		return nil, fmt.Errorf("round: value %v (%T) is not numeric", v, v)
	}
	if s.digits == 0 {
		return math.RoundToEven(f), nil
	}
	scale := math.Pow(10, float64(s.digits))
	return math.RoundToEven(f*scale) / scale, nil
}

// bit2intStep coerces a boolean (or any truthy value) to int 1/0.
type bit2intStep struct{}

func (bit2intStep) Apply(v models.Value) (models.Value, error) {
	if models.Truthy(v) {
		return int64(1), nil
	}
	return int64(0), nil
}

// int2bitStep coerces a numeric value to a boolean (nonzero → true).
type int2bitStep struct{}

func (int2bitStep) Apply(v models.Value) (models.Value, error) {
	return models.Truthy(v), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain
// ─────────────────────────────────────────────────────────────────────────────

// Chain is an ordered sequence of transform steps bound to one data point.
// A nil *Chain is valid and passes values through unchanged.
type Chain struct {
	id    string
	steps []Step
}

// Options carries the engine-owned collaborators a chain may need.
type Options struct {
	// Cache is the engine's speed cache. Required when any step is speed.
	Cache *SpeedCache

	// Clock returns the engine's last pull time in monotonic seconds.
	// Required when any step is speed.
	Clock func() float64
}

// New builds a chain for the data point id from the given step specs.
// dtype is the decoded data type feeding the chain; the speed step derives
// its wrap-around boundary from it unless the spec names an explicit
// data-type. All parameter validation happens here so that misconfiguration
// is fatal at init, never at runtime.
func New(id string, specs []Spec, dtype decode.Type, opts Options) (*Chain, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	steps := make([]Step, 0, len(specs))
	for i, sp := range specs {
		step, err := buildStep(id, sp, dtype, opts)
		if err != nil {
			return nil, fmt.Errorf("transform %s step %d (%s): %w", id, i, sp.Type, err)
		}
		steps = append(steps, step)
	}
	return &Chain{id: id, steps: steps}, nil
}

func buildStep(id string, sp Spec, dtype decode.Type, opts Options) (Step, error) {
	switch sp.Type {
	case "speed":
		if opts.Cache == nil || opts.Clock == nil {
			return nil, fmt.Errorf("speed requires an engine speed cache")
		}
		ctype := dtype
		if sp.DataType != "" {
			t, err := decode.ParseType(sp.DataType)
			if err != nil {
				return nil, err
			}
			ctype = t
		}
		max, ok := ctype.MaxCounter()
		if !ok {
			return nil, fmt.Errorf("speed is undefined for data type %s", ctype)
		}
		minInterval := 1.0
		if sp.Interval != nil {
			minInterval = *sp.Interval
		}
		return speedStep{
			id:          id,
			minInterval: minInterval,
			max:         max,
			cache:       opts.Cache,
			clock:       opts.Clock,
		}, nil

	case "multiply":
		if sp.Multiplier == nil {
			return nil, fmt.Errorf("multiplier is required")
		}
		return multiplyStep{factor: *sp.Multiplier}, nil

	case "divide":
		if sp.Divisor == nil {
			return nil, fmt.Errorf("divisor is required")
		}
		if *sp.Divisor == 0 {
			return nil, fmt.Errorf("divisor must be nonzero")
		}
		return divideStep{divisor: *sp.Divisor}, nil

	case "round":
		if sp.Digits == nil {
			return nil, fmt.Errorf("digits is required")
		}
		if *sp.Digits < 0 {
			return nil, fmt.Errorf("digits must be non-negative")
		}
		return roundStep{digits: *sp.Digits}, nil

	case "bit2int":
		return bit2intStep{}, nil

	case "int2bit":
		return int2bitStep{}, nil

	default:
		return nil, fmt.Errorf("unsupported transform type %q", sp.Type)
	}
}

// Apply folds v through the chain. A nil return (with nil error) means skip:
// no storage, no emission this cycle. A nil chain passes v through.
func (c *Chain) Apply(v models.Value) (models.Value, error) {
	if c == nil {
		return v, nil
	}
	for _, step := range c.steps {
		var err error
		v, err = step.Apply(v)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
	}
	return v, nil
}
