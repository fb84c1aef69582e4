// Package snmp implements the SNMP v1 / v2c protocol adapter.
//
// Each pull entry lists a set of OIDs: entries ending in ".*" are walked
// (GetNext on v1, GetBulk on v2c) and the rest are fetched with Get — or a
// single GetBulk when two or more scalar OIDs are requested on v2c. The
// resulting varbind list is routed through the pull's process map, which can
// rename an OID to a data-point identifier, attach a transform chain, or
// drop it via the ignore list.
package snmp

import (
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"
	"gopkg.in/yaml.v3"

	"github.com/edgewatch/edgepull/decode"
	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/transform"
)

const defaultPort = 161

// ─────────────────────────────────────────────────────────────────────────────
// Configuration schemas
// ─────────────────────────────────────────────────────────────────────────────

type protoConfig struct {
	Name      string     `yaml:"name"`
	Source    string     `yaml:"source"`
	Community flexString `yaml:"community"`
	Version   *int       `yaml:"version"`
	Retries   *int       `yaml:"retries"`
}

type pullEntry struct {
	Oids    []string    `yaml:"oids"`
	Process []procEntry `yaml:"process"`
	Ignore  []string    `yaml:"ignore"`
}

type procEntry struct {
	Oid       string           `yaml:"oid"`
	SetID     string           `yaml:"set-id"`
	Transform []transform.Spec `yaml:"transform"`
}

// flexString accepts a YAML string or integer (community strings are
// occasionally purely numeric and unquoted).
type flexString string

func (f *flexString) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!str", "!!int":
		*f = flexString(node.Value)
		return nil
	default:
		return fmt.Errorf("expected string or integer, got %s", node.Tag)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Adapter
// ─────────────────────────────────────────────────────────────────────────────

// Adapter is the live SNMP adapter. Shutdown closes the session socket.
type Adapter struct {
	session Session
	version int
	logger  *slog.Logger
}

// Init validates the proto / pull configuration, connects the session and
// registers one puller per pull entry on the engine core.
func Init(cfg *config.Config, core *engine.Core, logger *slog.Logger) (*Adapter, error) {
	return initWithDial(cfg, core, logger, dialSNMP)
}

func initWithDial(cfg *config.Config, core *engine.Core, logger *slog.Logger, dial Dial) (*Adapter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var proto protoConfig
	if err := config.StrictDecode(&cfg.Proto.Node, &proto); err != nil {
		return nil, fmt.Errorf("snmp: proto: %w", err)
	}
	if proto.Name != "snmp" {
		return nil, fmt.Errorf("snmp: unsupported protocol %q", proto.Name)
	}
	if proto.Source == "" {
		return nil, fmt.Errorf("snmp: source is required")
	}

	var pulls []pullEntry
	if err := config.StrictDecode(&cfg.Pull, &pulls); err != nil {
		return nil, fmt.Errorf("snmp: pull: %w", err)
	}

	params := SessionParams{
		Community: "public",
		Version:   2,
		Retries:   1,
		Timeout:   cfg.TimeoutDuration(),
	}
	params.Host, params.Port = splitSource(proto.Source, defaultPort)
	if proto.Community != "" {
		params.Community = string(proto.Community)
	}
	if proto.Version != nil {
		params.Version = *proto.Version
	}
	if proto.Retries != nil {
		if *proto.Retries < 0 {
			return nil, fmt.Errorf("snmp: retries must be ≥ 0")
		}
		params.Retries = *proto.Retries
	}
	if params.Version != 1 && params.Version != 2 {
		return nil, fmt.Errorf("snmp: unsupported version %d", params.Version)
	}

	session, err := dial(params)
	if err != nil {
		return nil, fmt.Errorf("snmp: %w", err)
	}

	a := &Adapter{session: session, version: params.Version, logger: logger}

	for i, p := range pulls {
		if err := a.registerPull(core, p); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("snmp: pull %d: %w", i, err)
		}
	}

	logger.Debug("snmp: adapter initialised",
		"host", params.Host,
		"port", params.Port,
		"version", params.Version,
		"pulls", len(pulls),
	)
	return a, nil
}

// Shutdown closes the session socket.
func (a *Adapter) Shutdown() error {
	return a.session.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Pull construction
// ─────────────────────────────────────────────────────────────────────────────

func (a *Adapter) registerPull(core *engine.Core, p pullEntry) error {
	if len(p.Oids) == 0 {
		return fmt.Errorf("oids is required")
	}

	var walks, gets []string
	for _, oid := range p.Oids {
		if n, ok := cutWalkSuffix(oid); ok {
			walks = append(walks, n)
		} else {
			gets = append(gets, oid)
		}
	}

	proc := varbindProc{
		routes: make(map[string]route, len(p.Process)),
		ignore: make(map[string]bool, len(p.Ignore)),
		store:  core.Store,
	}
	for _, m := range p.Process {
		if m.Oid == "" {
			return fmt.Errorf("process entry: oid is required")
		}
		id := m.SetID
		if id == "" {
			id = normaliseOID(m.Oid)
		}
		// Counter widths are unknown until runtime on SNMP, so speed chains
		// default to the 64-bit wrap unless the step names a data-type.
		chain, err := transform.New(id, m.Transform, decode.TypeUint64, transform.Options{
			Cache: core.Speed,
			Clock: core.LastPullTime,
		})
		if err != nil {
			return fmt.Errorf("process %s: %w", m.Oid, err)
		}
		proc.routes[normaliseOID(m.Oid)] = route{id: id, chain: chain}
	}
	for _, oid := range p.Ignore {
		proc.ignore[normaliseOID(oid)] = true
	}

	core.Registry.Register(a.buildFetch(walks, gets), []engine.ProcessFunc{proc.apply})
	return nil
}

// cutWalkSuffix reports whether the OID requests a subtree walk (trailing
// ".*") and returns it without the suffix.
func cutWalkSuffix(oid string) (string, bool) {
	const suffix = ".*"
	if len(oid) > len(suffix) && oid[len(oid)-len(suffix):] == suffix {
		return oid[:len(oid)-len(suffix)], true
	}
	return oid, false
}

// buildFetch returns the per-cycle SNMP exchange: walks first, then scalar
// gets — batched into one GetBulk when the device speaks v2c and two or more
// scalars are requested.
func (a *Adapter) buildFetch(walks, gets []string) engine.FetchFunc {
	return func() (any, error) {
		var result []gosnmp.SnmpPDU

		for _, root := range walks {
			var (
				pdus []gosnmp.SnmpPDU
				err  error
			)
			if a.version == 1 {
				pdus, err = a.session.WalkAll(root)
			} else {
				pdus, err = a.session.BulkWalkAll(root)
			}
			if err != nil {
				return nil, fmt.Errorf("snmp: walk %s: %w", root, err)
			}
			result = append(result, pdus...)
		}

		if len(gets) > 1 && a.version == 2 {
			pkt, err := a.session.GetBulk(gets, 0, 1)
			if err != nil {
				return nil, fmt.Errorf("snmp: getbulk: %w", err)
			}
			result = append(result, pkt.Variables...)
		} else {
			for _, oid := range gets {
				pkt, err := a.session.Get([]string{oid})
				if err != nil {
					return nil, fmt.Errorf("snmp: get %s: %w", oid, err)
				}
				result = append(result, pkt.Variables...)
			}
		}

		return result, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Varbind processing
// ─────────────────────────────────────────────────────────────────────────────

// route is the per-OID rename + transform binding from the process map.
type route struct {
	id    string
	chain *transform.Chain
}

// varbindProc routes one fetch's varbind list into the data-point store.
// Unmapped OIDs are emitted under their own OID; ignored OIDs are dropped.
type varbindProc struct {
	routes map[string]route
	ignore map[string]bool
	store  *engine.Store
}

func (p varbindProc) apply(payload any) error {
	pdus, ok := payload.([]gosnmp.SnmpPDU)
	if !ok {
		return fmt.Errorf("snmp: unexpected payload %T", payload)
	}

	for _, pdu := range pdus {
		oid := normaliseOID(pdu.Name)
		if p.ignore[oid] {
			continue
		}

		value := pduValue(pdu)
		if value == nil {
			// Error sentinel (NoSuchObject etc.) — nothing to emit.
			continue
		}
		id := oid

		if r, found := p.routes[oid]; found {
			id = r.id
			var err error
			value, err = r.chain.Apply(value)
			if err != nil {
				return err
			}
		}

		if err := p.store.Set(id, value); err != nil {
			return err
		}
	}
	return nil
}

// splitSource splits a "host[:port]" source, falling back to the default
// port when none (or a non-numeric one) is present.
func splitSource(source string, def int) (host string, port int) {
	for i := len(source) - 1; i >= 0; i-- {
		if source[i] == ':' {
			p := 0
			for _, c := range source[i+1:] {
				if c < '0' || c > '9' {
					return source, def
				}
				p = p*10 + int(c-'0')
			}
			if p == 0 {
				return source, def
			}
			return source[:i], p
		}
	}
	return source, def
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
