// Package enip implements the EtherNet/IP (Allen-Bradley CIP) protocol
// adapter.
//
// Each pull entry names a controller tag, its element size and an optional
// element count; its process entries describe typed values at byte offsets
// within the tag. Unlike the register adapters, values are not reassembled
// from raw words: the fetch calls the tag library's typed accessor once per
// process entry and hands the extracted values to the processing side.
package enip

import (
	"fmt"
	"log/slog"

	"github.com/edgewatch/edgepull/decode"
	"github.com/edgewatch/edgepull/models"
	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/transform"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration schemas
// ─────────────────────────────────────────────────────────────────────────────

type protoConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	CPU    string `yaml:"cpu"`
}

type pullEntry struct {
	Tag     string         `yaml:"tag"`
	Size    int            `yaml:"size"`
	Count   int            `yaml:"count"`
	Process []processEntry `yaml:"process"`
}

type processEntry struct {
	Offset    int              `yaml:"offset"`
	SetID     string           `yaml:"set-id"`
	Type      string           `yaml:"type"`
	Transform []transform.Spec `yaml:"transform"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Adapter
// ─────────────────────────────────────────────────────────────────────────────

// Adapter is the live EtherNet/IP adapter. Shutdown releases the CIP session.
type Adapter struct {
	reader TagReader
	logger *slog.Logger
}

// Init validates the proto / pull configuration, opens the CIP session and
// registers one puller per pull entry on the engine core.
func Init(cfg *config.Config, core *engine.Core, logger *slog.Logger) (*Adapter, error) {
	return initWithDial(cfg, core, logger, dialGologix)
}

func initWithDial(cfg *config.Config, core *engine.Core, logger *slog.Logger, dial Dial) (*Adapter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var proto protoConfig
	if err := config.StrictDecode(&cfg.Proto.Node, &proto); err != nil {
		return nil, fmt.Errorf("enip: proto: %w", err)
	}
	if proto.Name != "enip/ab_eip" {
		return nil, fmt.Errorf("enip: unsupported protocol %q", proto.Name)
	}
	if proto.Source == "" {
		return nil, fmt.Errorf("enip: source is required")
	}
	switch proto.CPU {
	case "LGX", "MLGX", "PLC", "MLGX800":
	default:
		return nil, fmt.Errorf("enip: unsupported cpu %q", proto.CPU)
	}
	if proto.Path != "" && proto.Path != "1,0" {
		// The CIP session targets the default backplane route; a custom path
		// must fail loudly rather than be silently ignored.
		return nil, fmt.Errorf("enip: unsupported path %q (only the default backplane route is supported)", proto.Path)
	}

	var pulls []pullEntry
	if err := config.StrictDecode(&cfg.Pull, &pulls); err != nil {
		return nil, fmt.Errorf("enip: pull: %w", err)
	}

	reader, err := dial(proto.Source, cfg.TimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("enip: %w", err)
	}

	a := &Adapter{reader: reader, logger: logger}

	for i, p := range pulls {
		if err := a.registerPull(core, p); err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("enip: pull %d: %w", i, err)
		}
	}

	logger.Debug("enip: adapter initialised",
		"source", proto.Source,
		"cpu", proto.CPU,
		"pulls", len(pulls),
	)
	return a, nil
}

// Shutdown releases the CIP session and any cached tag handles.
func (a *Adapter) Shutdown() error {
	return a.reader.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Pull construction
// ─────────────────────────────────────────────────────────────────────────────

// readSpec is one typed accessor call bound at init: which tag, which byte
// offset, which type.
type readSpec struct {
	tag    string
	offset int
	typ    decode.Type
}

func (a *Adapter) registerPull(core *engine.Core, p pullEntry) error {
	if p.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	size := p.Size
	if size < 1 {
		size = 1
	}
	count := p.Count
	if count < 1 {
		count = 1
	}
	total := size * count

	specs := make([]readSpec, 0, len(p.Process))
	process := make([]engine.ProcessFunc, 0, len(p.Process))
	for j, m := range p.Process {
		rs, fn, err := buildProcess(core, p.Tag, total, len(specs), m)
		if err != nil {
			return fmt.Errorf("process %d (%s): %w", j, m.SetID, err)
		}
		specs = append(specs, rs)
		process = append(process, fn)
	}

	core.Registry.Register(a.buildFetch(specs), process)
	return nil
}

// buildFetch returns the per-cycle read for one pull entry: one typed
// accessor call per process entry, in declaration order. The payload is the
// slice of extracted values, indexed by process entry position.
func (a *Adapter) buildFetch(specs []readSpec) engine.FetchFunc {
	return func() (any, error) {
		values := make([]models.Value, len(specs))
		for i, rs := range specs {
			v, err := a.readValue(rs)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}
}

// readValue dispatches one readSpec to the matching typed accessor.
func (a *Adapter) readValue(rs readSpec) (models.Value, error) {
	switch rs.typ {
	case decode.TypeUint8:
		v, err := a.reader.Uint8(rs.tag, rs.offset)
		return v, err
	case decode.TypeInt8:
		v, err := a.reader.Int8(rs.tag, rs.offset)
		return v, err
	case decode.TypeUint16:
		v, err := a.reader.Uint16(rs.tag, rs.offset)
		return v, err
	case decode.TypeInt16:
		v, err := a.reader.Int16(rs.tag, rs.offset)
		return v, err
	case decode.TypeUint32:
		v, err := a.reader.Uint32(rs.tag, rs.offset)
		return v, err
	case decode.TypeInt32:
		v, err := a.reader.Int32(rs.tag, rs.offset)
		return v, err
	case decode.TypeUint64:
		v, err := a.reader.Uint64(rs.tag, rs.offset)
		return v, err
	case decode.TypeInt64:
		v, err := a.reader.Int64(rs.tag, rs.offset)
		return v, err
	case decode.TypeReal32:
		v, err := a.reader.Real32(rs.tag, rs.offset)
		return v, err
	case decode.TypeReal64:
		v, err := a.reader.Real64(rs.tag, rs.offset)
		return v, err
	default:
		return nil, fmt.Errorf("enip: unsupported type %s", rs.typ)
	}
}

// buildProcess binds one decode site: identifier, validated offset/type, the
// accessor call, and the transform chain. All validation happens here so
// that a bad offset or type can never surface mid-cycle.
func buildProcess(core *engine.Core, tag string, total, index int, m processEntry) (readSpec, engine.ProcessFunc, error) {
	if m.SetID == "" {
		return readSpec{}, nil, fmt.Errorf("set-id is required")
	}
	if m.Type == "" {
		return readSpec{}, nil, fmt.Errorf("type is required")
	}
	typ, err := decode.ParseType(m.Type)
	if err != nil {
		return readSpec{}, nil, err
	}
	width, ok := decode.ByteWidth(typ)
	if !ok {
		return readSpec{}, nil, fmt.Errorf("type %s has no typed accessor", typ)
	}
	if m.Offset < 0 || m.Offset+width > total {
		return readSpec{}, nil, fmt.Errorf("offset %d (%s) out of range (%d bytes)", m.Offset, typ, total)
	}
	if m.Offset%width != 0 {
		return readSpec{}, nil, fmt.Errorf("offset %d is not aligned to %s elements", m.Offset, typ)
	}

	chain, err := transform.New(m.SetID, m.Transform, typ, transform.Options{
		Cache: core.Speed,
		Clock: core.LastPullTime,
	})
	if err != nil {
		return readSpec{}, nil, err
	}

	rs := readSpec{tag: tag, offset: m.Offset, typ: typ}
	fn := tagProc{id: m.SetID, index: index, chain: chain, store: core.Store}.apply
	return rs, fn, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Process closure
// ─────────────────────────────────────────────────────────────────────────────

// tagProc consumes the value its accessor extracted during the fetch.
type tagProc struct {
	id    string
	index int
	chain *transform.Chain
	store *engine.Store
}

func (p tagProc) apply(payload any) error {
	values, ok := payload.([]models.Value)
	if !ok {
		return fmt.Errorf("enip: %s: unexpected payload %T", p.id, payload)
	}
	out, err := p.chain.Apply(values[p.index])
	if err != nil {
		return err
	}
	return p.store.Set(p.id, out)
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
