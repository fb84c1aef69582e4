// Package config provides YAML configuration loading for the poller.
//
// One file describes the whole engine: the source protocol, the reads to
// perform each cycle, how to slice decoded payloads into data points, and the
// transformations to apply. The top-level schema is validated here; the
// adapter-specific `proto` and `pull` sub-documents are kept as raw YAML
// nodes and validated by the protocol adapter that consumes them, against its
// own schema. Unknown keys are rejected at every level.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding key is absent.
const (
	DefaultFreq    = 1.0
	DefaultTimeout = 5.0
	DefaultBeacon  = 2.0
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully parsed and validated engine configuration.
type Config struct {
	// Version is the configuration schema version (≥1).
	Version int

	// Freq is the cycle frequency in Hz; the cycle interval is 1/Freq.
	Freq float64

	// Timeout is the protocol I/O timeout in seconds.
	Timeout float64

	// Beacon is the heartbeat period in seconds; 0 disables the beacon.
	Beacon float64

	// TimeFormat is "iso", "timestamp" or "" (no timestamp prefix).
	TimeFormat string

	// Output selects and parameterises the sink.
	Output Output

	// Proto identifies the protocol adapter and carries its raw config.
	Proto Proto

	// Pull is the adapter-specific pull list, decoded by the adapter.
	Pull yaml.Node
}

// Output is the sink selection. In YAML it may be a plain scalar
// (`output: csv`) or a mapping (`output: {type: csv}`).
type Output struct {
	Type string `yaml:"type"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (o *Output) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&o.Type)
	}
	type plain struct {
		Type string `yaml:"type"`
	}
	var p plain
	if err := StrictDecode(node, &p); err != nil {
		return err
	}
	o.Type = p.Type
	return nil
}

// Proto carries the adapter selector and the raw proto sub-document.
type Proto struct {
	// Name is the full selector, e.g. "modbus/tcp", "enip/ab_eip", "snmp".
	Name string

	// Family is the part of Name before the first "/", used to pick the
	// adapter implementation.
	Family string

	// Node is the raw proto mapping for the adapter's own schema.
	Node yaml.Node
}

// Interval returns the cycle period 1/Freq.
func (c *Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.Freq)
}

// TimeoutDuration returns the I/O timeout as a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// BeaconInterval returns the heartbeat period as a duration (0 = disabled).
func (c *Config) BeaconInterval() time.Duration {
	return time.Duration(c.Beacon * float64(time.Second))
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────────────

// rawConfig is the strict YAML form of the top level. Pointer fields
// distinguish absent keys from explicit zeros during validation.
type rawConfig struct {
	Version    *int     `yaml:"version"`
	Freq       *float64 `yaml:"freq"`
	Timeout    *float64 `yaml:"timeout"`
	Beacon     *float64 `yaml:"beacon"`
	TimeFormat string   `yaml:"time-format"`
	Output     Output   `yaml:"output"`
	Proto      yaml.Node `yaml:"proto"`
	Pull       yaml.Node `yaml:"pull"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg := &Config{
		Freq:       DefaultFreq,
		Timeout:    DefaultTimeout,
		Beacon:     DefaultBeacon,
		TimeFormat: raw.TimeFormat,
		Output:     raw.Output,
		Pull:       raw.Pull,
	}

	if raw.Version == nil {
		return nil, fmt.Errorf("config: version is required")
	}
	if *raw.Version < 1 {
		return nil, fmt.Errorf("config: version must be ≥ 1, got %d", *raw.Version)
	}
	cfg.Version = *raw.Version

	if raw.Freq != nil {
		if *raw.Freq <= 0 {
			return nil, fmt.Errorf("config: freq must be positive, got %v", *raw.Freq)
		}
		cfg.Freq = *raw.Freq
	}
	if raw.Timeout != nil {
		if *raw.Timeout < 0 {
			return nil, fmt.Errorf("config: timeout must be ≥ 0, got %v", *raw.Timeout)
		}
		cfg.Timeout = *raw.Timeout
	}
	if raw.Beacon != nil {
		if *raw.Beacon < 0 {
			return nil, fmt.Errorf("config: beacon must be ≥ 0, got %v", *raw.Beacon)
		}
		cfg.Beacon = *raw.Beacon
	}

	switch cfg.TimeFormat {
	case "", "iso", "timestamp":
	default:
		return nil, fmt.Errorf("config: time-format must be iso or timestamp, got %q", cfg.TimeFormat)
	}

	if raw.Proto.IsZero() {
		return nil, fmt.Errorf("config: proto is required")
	}
	if raw.Pull.IsZero() {
		return nil, fmt.Errorf("config: pull is required")
	}

	// Peek the adapter selector; the rest of the proto mapping is the
	// adapter's to validate.
	var sel struct {
		Name string `yaml:"name"`
	}
	if err := raw.Proto.Decode(&sel); err != nil {
		return nil, fmt.Errorf("config: proto: %w", err)
	}
	if sel.Name == "" {
		return nil, fmt.Errorf("config: proto.name is required")
	}
	cfg.Proto = Proto{
		Name:   sel.Name,
		Family: familyOf(sel.Name),
		Node:   raw.Proto,
	}

	return cfg, nil
}

// familyOf returns the selector part before the first "/".
func familyOf(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return name
}

// ─────────────────────────────────────────────────────────────────────────────
// Strict sub-document decoding
// ─────────────────────────────────────────────────────────────────────────────

// StrictDecode decodes a YAML node into out, rejecting unknown fields. It is
// the helper protocol adapters use to validate their proto / pull
// sub-documents with the same strictness as the top level.
func StrictDecode(node *yaml.Node, out any) error {
	if node == nil || node.IsZero() {
		return fmt.Errorf("config: empty document")
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("config: re-encode: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
