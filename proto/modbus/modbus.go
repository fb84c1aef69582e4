// Package modbus implements the Modbus TCP / UDP protocol adapter.
//
// One client connection serves all configured pulls. Each pull entry reads a
// block of coils, discrete inputs, holding registers or input registers; its
// process entries slice the block into identified data points using the
// decode primitives and run their transform chains.
package modbus

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	mb "github.com/simonvetter/modbus"

	"github.com/edgewatch/edgepull/decode"
	"github.com/edgewatch/edgepull/models"
	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/transform"
)

const defaultPort = 502

// ─────────────────────────────────────────────────────────────────────────────
// Client — the subset of the modbus library the adapter consumes
// ─────────────────────────────────────────────────────────────────────────────

// Client lets tests substitute a fake device for *mb.ModbusClient.
type Client interface {
	SetUnitId(id uint8) error
	ReadRegisters(addr uint16, quantity uint16, regType mb.RegType) ([]uint16, error)
	ReadCoils(addr uint16, quantity uint16) ([]bool, error)
	ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error)
	Close() error
}

// Dial opens a Client for the given URL and timeout. Replaced in tests.
type Dial func(url string, timeout time.Duration) (Client, error)

func dialModbus(url string, timeout time.Duration) (Client, error) {
	c, err := mb.NewClient(&mb.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration schemas
// ─────────────────────────────────────────────────────────────────────────────

type protoConfig struct {
	Name        string   `yaml:"name"`
	Source      string   `yaml:"source"`
	DefaultUnit *flexInt `yaml:"default-unit"`
}

type pullEntry struct {
	Reg     string         `yaml:"reg"`
	Count   int            `yaml:"count"`
	Unit    *flexInt       `yaml:"unit"`
	Process []processEntry `yaml:"process"`
}

type processEntry struct {
	Offset    offsetSpec       `yaml:"offset"`
	SetID     string           `yaml:"set-id"`
	Type      string           `yaml:"type"`
	Transform []transform.Spec `yaml:"transform"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Adapter
// ─────────────────────────────────────────────────────────────────────────────

// Adapter is the live Modbus adapter. Shutdown closes the client connection.
type Adapter struct {
	client Client
	logger *slog.Logger
}

// Init validates the proto / pull configuration, opens the transport and
// registers one puller per pull entry on the engine core.
func Init(cfg *config.Config, core *engine.Core, logger *slog.Logger) (*Adapter, error) {
	return initWithDial(cfg, core, logger, dialModbus)
}

func initWithDial(cfg *config.Config, core *engine.Core, logger *slog.Logger, dial Dial) (*Adapter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var proto protoConfig
	if err := config.StrictDecode(&cfg.Proto.Node, &proto); err != nil {
		return nil, fmt.Errorf("modbus: proto: %w", err)
	}

	var scheme string
	switch proto.Name {
	case "modbus/tcp":
		scheme = "tcp"
	case "modbus/udp":
		scheme = "udp"
	default:
		return nil, fmt.Errorf("modbus: unsupported protocol %q", proto.Name)
	}
	if proto.Source == "" {
		return nil, fmt.Errorf("modbus: source is required")
	}

	var pulls []pullEntry
	if err := config.StrictDecode(&cfg.Pull, &pulls); err != nil {
		return nil, fmt.Errorf("modbus: pull: %w", err)
	}

	host, port := splitSource(proto.Source, defaultPort)
	url := fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)))

	client, err := dial(url, cfg.TimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("modbus: connect %s: %w", url, err)
	}

	a := &Adapter{client: client, logger: logger}

	defaultUnit := 1
	if proto.DefaultUnit != nil {
		defaultUnit = proto.DefaultUnit.value
	}

	for i, p := range pulls {
		if err := a.registerPull(core, p, defaultUnit); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("modbus: pull %d: %w", i, err)
		}
	}

	logger.Debug("modbus: adapter initialised",
		"url", url,
		"pulls", len(pulls),
	)
	return a, nil
}

// Shutdown closes the client connection. Safe to call once per Init; the
// engine guarantees the processor has drained first.
func (a *Adapter) Shutdown() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("modbus: close: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pull construction
// ─────────────────────────────────────────────────────────────────────────────

// regKind selects the Modbus area from the first character of the reg field.
type regKind byte

const (
	kindCoil     regKind = 'c'
	kindDiscrete regKind = 'd'
	kindHolding  regKind = 'h'
	kindInput    regKind = 'i'
)

func (k regKind) bits() bool { return k == kindCoil || k == kindDiscrete }

func (a *Adapter) registerPull(core *engine.Core, p pullEntry, defaultUnit int) error {
	if p.Reg == "" {
		return fmt.Errorf("reg is required")
	}
	kind := regKind(p.Reg[0])
	switch kind {
	case kindCoil, kindDiscrete, kindHolding, kindInput:
	default:
		return fmt.Errorf("invalid register type %q", string(p.Reg[0]))
	}
	addr, err := parseInt(p.Reg[1:])
	if err != nil {
		return fmt.Errorf("reg address %q: %w", p.Reg[1:], err)
	}
	if addr < 0 || addr > 0xFFFF {
		return fmt.Errorf("reg address %d out of range", addr)
	}

	count := p.Count
	if count < 1 {
		count = 1
	}

	unit := defaultUnit
	if p.Unit != nil {
		unit = p.Unit.value
	}
	if unit < 0 || unit > 255 {
		return fmt.Errorf("unit %d out of range", unit)
	}

	process := make([]engine.ProcessFunc, 0, len(p.Process))
	for j, m := range p.Process {
		fn, err := a.buildProcess(core, kind, addr, count, m)
		if err != nil {
			return fmt.Errorf("process %d (%s): %w", j, m.SetID, err)
		}
		process = append(process, fn)
	}

	fetch := a.buildFetch(kind, uint8(unit), uint16(addr), uint16(count))
	core.Registry.Register(fetch, process)
	return nil
}

// buildFetch returns the zero-argument read for one pull entry. Register
// reads yield []uint16 payloads, coil / discrete reads yield []bool.
func (a *Adapter) buildFetch(kind regKind, unit uint8, addr, count uint16) engine.FetchFunc {
	return func() (any, error) {
		if err := a.client.SetUnitId(unit); err != nil {
			return nil, fmt.Errorf("modbus: set unit %d: %w", unit, err)
		}
		switch kind {
		case kindCoil:
			bits, err := a.client.ReadCoils(addr, count)
			if err != nil {
				return nil, fmt.Errorf("modbus: read coils %d+%d: %w", addr, count, err)
			}
			return bits, nil
		case kindDiscrete:
			bits, err := a.client.ReadDiscreteInputs(addr, count)
			if err != nil {
				return nil, fmt.Errorf("modbus: read discretes %d+%d: %w", addr, count, err)
			}
			return bits, nil
		case kindInput:
			regs, err := a.client.ReadRegisters(addr, count, mb.INPUT_REGISTER)
			if err != nil {
				return nil, fmt.Errorf("modbus: read input registers %d+%d: %w", addr, count, err)
			}
			return regs, nil
		default:
			regs, err := a.client.ReadRegisters(addr, count, mb.HOLDING_REGISTER)
			if err != nil {
				return nil, fmt.Errorf("modbus: read holding registers %d+%d: %w", addr, count, err)
			}
			return regs, nil
		}
	}
}

// buildProcess binds one decode site: identifier, resolved offset, decoder
// and transform chain. All validation happens here so that a bad offset or
// type can never surface mid-cycle.
func (a *Adapter) buildProcess(core *engine.Core, kind regKind, addr, count int, m processEntry) (engine.ProcessFunc, error) {
	if m.SetID == "" {
		return nil, fmt.Errorf("set-id is required")
	}

	if kind.bits() {
		// Coils / discretes carry one bit per payload element; only the
		// plain bit decoder applies.
		if m.Type != "" {
			return nil, fmt.Errorf("type %q is not allowed on %c registers", m.Type, kind)
		}
		offset, bit, err := m.Offset.resolve(addr)
		if err != nil {
			return nil, err
		}
		if bit >= 0 {
			return nil, fmt.Errorf("bit suffix is not allowed on %c registers", kind)
		}
		if offset >= count {
			return nil, fmt.Errorf("offset %d out of range (count %d)", offset, count)
		}
		chain, err := transform.New(m.SetID, m.Transform, decode.TypeBit, chainOptions(core))
		if err != nil {
			return nil, err
		}
		return bitProc{id: m.SetID, offset: offset, chain: chain, store: core.Store}.apply, nil
	}

	offset, bit, err := m.Offset.resolve(addr)
	if err != nil {
		return nil, err
	}

	if bit >= 0 {
		if bit > 15 {
			return nil, fmt.Errorf("bit %d out of range", bit)
		}
		if m.Type != "" {
			return nil, fmt.Errorf("type %q conflicts with a /bit offset", m.Type)
		}
		if offset >= count {
			return nil, fmt.Errorf("offset %d out of range (count %d)", offset, count)
		}
		chain, err := transform.New(m.SetID, m.Transform, decode.TypeBit, chainOptions(core))
		if err != nil {
			return nil, err
		}
		return regBitProc{id: m.SetID, offset: offset, bit: bit, chain: chain, store: core.Store}.apply, nil
	}

	typ := decode.TypeUint16
	if m.Type != "" {
		typ, err = decode.ParseType(m.Type)
		if err != nil {
			return nil, err
		}
		switch typ {
		case decode.TypeUint16, decode.TypeInt16, decode.TypeUint32, decode.TypeInt32, decode.TypeReal32:
		default:
			return nil, fmt.Errorf("type %q is not supported on modbus registers", m.Type)
		}
	}
	width, ok := decode.RegWidth(typ)
	if !ok {
		return nil, fmt.Errorf("type %s is not register-addressable", typ)
	}
	if offset+width > count {
		return nil, fmt.Errorf("offset %d (%s) out of range (count %d)", offset, typ, count)
	}

	chain, err := transform.New(m.SetID, m.Transform, typ, chainOptions(core))
	if err != nil {
		return nil, err
	}
	return regProc{id: m.SetID, offset: offset, typ: typ, chain: chain, store: core.Store}.apply, nil
}

func chainOptions(core *engine.Core) transform.Options {
	return transform.Options{Cache: core.Speed, Clock: core.LastPullTime}
}

// ─────────────────────────────────────────────────────────────────────────────
// Process closures
// ─────────────────────────────────────────────────────────────────────────────

// bitProc reads one coil / discrete bit from a []bool payload.
type bitProc struct {
	id     string
	offset int
	chain  *transform.Chain
	store  *engine.Store
}

func (p bitProc) apply(payload any) error {
	bits, ok := payload.([]bool)
	if !ok {
		return fmt.Errorf("modbus: %s: unexpected payload %T", p.id, payload)
	}
	v, err := p.chain.Apply(bits[p.offset])
	if err != nil {
		return err
	}
	return p.store.Set(p.id, v)
}

// regBitProc extracts a single bit from a register payload.
type regBitProc struct {
	id     string
	offset int
	bit    int
	chain  *transform.Chain
	store  *engine.Store
}

func (p regBitProc) apply(payload any) error {
	regs, ok := payload.([]uint16)
	if !ok {
		return fmt.Errorf("modbus: %s: unexpected payload %T", p.id, payload)
	}
	v, err := p.chain.Apply(decode.Bit(regs, p.offset, p.bit))
	if err != nil {
		return err
	}
	return p.store.Set(p.id, v)
}

// regProc extracts a typed scalar from a register payload.
type regProc struct {
	id     string
	offset int
	typ    decode.Type
	chain  *transform.Chain
	store  *engine.Store
}

func (p regProc) apply(payload any) error {
	regs, ok := payload.([]uint16)
	if !ok {
		return fmt.Errorf("modbus: %s: unexpected payload %T", p.id, payload)
	}

	var v models.Value
	switch p.typ {
	case decode.TypeUint16:
		v = decode.Uint16(regs, p.offset)
	case decode.TypeInt16:
		v = decode.Int16(regs, p.offset)
	case decode.TypeUint32:
		v = decode.Uint32(regs, p.offset)
	case decode.TypeInt32:
		v = decode.Int32(regs, p.offset)
	case decode.TypeReal32:
		v = decode.Real32(regs, p.offset)
	default:
		return fmt.Errorf("modbus: %s: unsupported type %s", p.id, p.typ)
	}

	out, err := p.chain.Apply(v)
	if err != nil {
		return err
	}
	return p.store.Set(p.id, out)
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
