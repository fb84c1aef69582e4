package modbus

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	mb "github.com/simonvetter/modbus"

	"github.com/edgewatch/edgepull/models"
	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/transform"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

// fakeClient is a scriptable Modbus device.
type fakeClient struct {
	mu        sync.Mutex
	regs      []uint16
	bits      []bool
	unit      uint8
	lastRead  string // "holding", "input", "coils", "discretes"
	closed    int
	failReads bool
}

func (f *fakeClient) SetUnitId(id uint8) error {
	f.mu.Lock()
	f.unit = id
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) ReadRegisters(addr uint16, quantity uint16, regType mb.RegType) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, fmt.Errorf("timeout")
	}
	if regType == mb.INPUT_REGISTER {
		f.lastRead = "input"
	} else {
		f.lastRead = "holding"
	}
	out := make([]uint16, quantity)
	copy(out, f.regs)
	return out, nil
}

func (f *fakeClient) ReadCoils(addr uint16, quantity uint16) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRead = "coils"
	out := make([]bool, quantity)
	copy(out, f.bits)
	return out, nil
}

func (f *fakeClient) ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRead = "discretes"
	out := make([]bool, quantity)
	copy(out, f.bits)
	return out, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

// recordSink captures data-point emissions.
type recordSink struct {
	lines []emission
}

type emission struct {
	ID    string
	Value models.Value
}

func (s *recordSink) Write(id string, value models.Value) error {
	s.lines = append(s.lines, emission{ID: id, Value: value})
	return nil
}

func (s *recordSink) Beacon() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

type harness struct {
	adapter *Adapter
	core    *engine.Core
	client  *fakeClient
	sink    *recordSink
	now     float64
}

// newHarness initialises the adapter against a fake client from full YAML
// configuration text.
func newHarness(t *testing.T, yaml string, client *fakeClient) *harness {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}

	h := &harness{client: client, sink: &recordSink{}}
	h.core = &engine.Core{
		Registry:     &engine.Registry{},
		Speed:        transform.NewSpeedCache(),
		LastPullTime: func() float64 { return h.now },
	}
	h.core.Store = engine.NewStore(h.sink)

	dial := func(url string, timeout time.Duration) (Client, error) { return client, nil }
	h.adapter, err = initWithDial(cfg, h.core, nil, dial)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return h
}

// cycle runs one fetch-and-process pass over every registered puller.
func (h *harness) cycle(t *testing.T) {
	t.Helper()
	for i, p := range h.core.Registry.Pullers() {
		payload, err := p.Fetch()
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		for j, fn := range p.Process {
			if err := fn(payload); err != nil {
				t.Fatalf("process %d/%d: %v", i, j, err)
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// End-to-end decode scenarios
// ─────────────────────────────────────────────────────────────────────────────

func TestBitDecodeWithDeduplication(t *testing.T) {
	client := &fakeClient{regs: []uint16{0x0005}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0/0
        set-id: d.a
      - offset: 0/2
        set-id: d.b
`, client)

	h.cycle(t)
	want := []emission{{"d.a", true}, {"d.b", true}}
	if len(h.sink.lines) != 2 || h.sink.lines[0] != want[0] || h.sink.lines[1] != want[1] {
		t.Fatalf("cycle 1 emissions = %v, want %v", h.sink.lines, want)
	}

	// Next cycle: bit 0 clears, bit 2 stays set — only d.a re-emits.
	client.mu.Lock()
	client.regs = []uint16{0x0004}
	client.mu.Unlock()
	h.cycle(t)

	if len(h.sink.lines) != 3 {
		t.Fatalf("cycle 2 emissions = %v, want one more", h.sink.lines)
	}
	if h.sink.lines[2] != (emission{"d.a", false}) {
		t.Fatalf("cycle 2 emission = %v, want d.a false", h.sink.lines[2])
	}
}

func TestSignedInt16Decode(t *testing.T) {
	client := &fakeClient{regs: []uint16{0xFFFE}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h100
    count: 1
    process:
      - offset: 0
        set-id: d.t
        type: sint16
`, client)

	h.cycle(t)
	if len(h.sink.lines) != 1 || h.sink.lines[0].Value != int64(-2) {
		t.Fatalf("emissions = %v, want d.t -2", h.sink.lines)
	}
}

func TestReal32Decode(t *testing.T) {
	client := &fakeClient{regs: []uint16{0x4049, 0x0FDB}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h0
    count: 2
    process:
      - offset: 0
        set-id: d.pi
        type: real32
`, client)

	h.cycle(t)
	if len(h.sink.lines) != 1 {
		t.Fatalf("emissions = %v", h.sink.lines)
	}
	got, ok := h.sink.lines[0].Value.(float64)
	if !ok || math.Abs(got-3.14159) > 1e-4 {
		t.Fatalf("d.pi = %v, want ≈3.14159", h.sink.lines[0].Value)
	}
}

func TestTransformChainThroughAdapter(t *testing.T) {
	client := &fakeClient{regs: []uint16{1000}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0
        set-id: d.v
        transform:
          - type: divide
            divisor: 10
          - type: round
            digits: 2
`, client)

	h.cycle(t)
	if len(h.sink.lines) != 1 || h.sink.lines[0].Value != float64(100) {
		t.Fatalf("emissions = %v, want d.v 100.0", h.sink.lines)
	}

	client.mu.Lock()
	client.regs = []uint16{1005}
	client.mu.Unlock()
	h.cycle(t)
	if len(h.sink.lines) != 2 || h.sink.lines[1].Value != float64(100.5) {
		t.Fatalf("emissions = %v, want d.v 100.5 appended", h.sink.lines)
	}

	// Unchanged raw value: deduplicated.
	h.cycle(t)
	if len(h.sink.lines) != 2 {
		t.Fatalf("emissions = %v, want no new emission", h.sink.lines)
	}
}

func TestSpeedOnUint32WrapThroughAdapter(t *testing.T) {
	client := &fakeClient{regs: []uint16{0xFFFF, 0xFFFA}} // 4294967290
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h0
    count: 2
    process:
      - offset: 0
        set-id: d.rate
        type: uint32
        transform:
          - type: speed
            interval: 1
`, client)

	h.now = 0
	h.cycle(t)
	if len(h.sink.lines) != 1 || h.sink.lines[0].Value != float64(0) {
		t.Fatalf("first cycle = %v, want d.rate 0", h.sink.lines)
	}

	client.mu.Lock()
	client.regs = []uint16{0x0000, 0x0005} // wrapped to 5
	client.mu.Unlock()
	h.now = 1.0
	h.cycle(t)
	if len(h.sink.lines) != 2 || h.sink.lines[1].Value != float64(10) {
		t.Fatalf("second cycle = %v, want d.rate 10", h.sink.lines)
	}
}

func TestCoilDecode(t *testing.T) {
	client := &fakeClient{bits: []bool{true, false}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: c0
    count: 2
    process:
      - offset: 0
        set-id: d.c0
      - offset: 1
        set-id: d.c1
        transform:
          - type: bit2int
`, client)

	h.cycle(t)
	if client.lastRead != "coils" {
		t.Fatalf("lastRead = %q, want coils", client.lastRead)
	}
	want := []emission{{"d.c0", true}, {"d.c1", int64(0)}}
	if len(h.sink.lines) != 2 || h.sink.lines[0] != want[0] || h.sink.lines[1] != want[1] {
		t.Fatalf("emissions = %v, want %v", h.sink.lines, want)
	}
}

func TestRegisterAreaSelection(t *testing.T) {
	tests := []struct {
		reg  string
		want string
	}{
		{"h0", "holding"},
		{"i0", "input"},
		{"c0", "coils"},
		{"d0", "discretes"},
	}
	for _, tt := range tests {
		client := &fakeClient{regs: []uint16{0}, bits: []bool{false}}
		h := newHarness(t, fmt.Sprintf(`
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: %s
    count: 1
    process: []
`, tt.reg), client)
		h.cycle(t)
		if client.lastRead != tt.want {
			t.Errorf("reg %s read %q, want %q", tt.reg, client.lastRead, tt.want)
		}
	}
}

func TestUnitSelection(t *testing.T) {
	client := &fakeClient{regs: []uint16{0}}
	h := newHarness(t, `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
  default-unit: 3
pull:
  - reg: h0
    count: 1
    process: []
  - reg: h0
    count: 1
    unit: 7
    process: []
`, client)

	pullers := h.core.Registry.Pullers()
	if _, err := pullers[0].Fetch(); err != nil {
		t.Fatal(err)
	}
	if client.unit != 3 {
		t.Errorf("unit = %d, want default-unit 3", client.unit)
	}
	if _, err := pullers[1].Fetch(); err != nil {
		t.Fatal(err)
	}
	if client.unit != 7 {
		t.Errorf("unit = %d, want 7", client.unit)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Init-time validation
// ─────────────────────────────────────────────────────────────────────────────

func mustParse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func TestInitRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"coil with type", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: c0
    count: 1
    process:
      - offset: 0
        set-id: d.x
        type: uint16
`},
		{"coil with bit suffix", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: c0
    count: 1
    process:
      - offset: 0/1
        set-id: d.x
`},
		{"offset out of range", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 2
    process:
      - offset: 1
        set-id: d.x
        type: uint32
`},
		{"bit out of range", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0/16
        set-id: d.x
`},
		{"unsupported type", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 4
    process:
      - offset: 0
        set-id: d.x
        type: uint64
`},
		{"missing set-id", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0
`},
		{"bad register prefix", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: x0
    count: 1
    process: []
`},
		{"unknown pull key", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 1
    register: extra
    process: []
`},
		{"speed on signed type", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0
        set-id: d.x
        type: sint16
        transform:
          - type: speed
`},
		{"zero divisor", `
version: 1
proto: {name: modbus/tcp, source: h}
pull:
  - reg: h0
    count: 1
    process:
      - offset: 0
        set-id: d.x
        transform:
          - type: divide
            divisor: 0
`},
		{"wrong proto name", `
version: 1
proto: {name: modbus/rtu, source: h}
pull: []
`},
		{"missing source", `
version: 1
proto: {name: modbus/tcp}
pull: []
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustParse(t, tt.yaml)
			core := &engine.Core{
				Registry:     &engine.Registry{},
				Store:        engine.NewStore(&recordSink{}),
				Speed:        transform.NewSpeedCache(),
				LastPullTime: func() float64 { return 0 },
			}
			dial := func(url string, timeout time.Duration) (Client, error) {
				return &fakeClient{}, nil
			}
			if _, err := initWithDial(cfg, core, nil, dial); err == nil {
				t.Error("expected init error")
			}
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Offset grammar
// ─────────────────────────────────────────────────────────────────────────────

func TestOffsetGrammar(t *testing.T) {
	tests := []struct {
		name   string
		spec   offsetSpec
		addr   int
		offset int
		bit    int
		ok     bool
	}{
		{"plain int", offsetSpec{num: 3, isNum: true, exists: true}, 100, 3, -1, true},
		{"string decimal", offsetSpec{str: "5", exists: true}, 100, 5, -1, true},
		{"string hex", offsetSpec{str: "0x10", exists: true}, 100, 16, -1, true},
		{"absolute", offsetSpec{str: "=110", exists: true}, 100, 10, -1, true},
		{"absolute hex", offsetSpec{str: "=0x70", exists: true}, 100, 12, -1, true},
		{"bit suffix", offsetSpec{str: "2/5", exists: true}, 100, 2, 5, true},
		{"absolute with bit", offsetSpec{str: "=102/7", exists: true}, 100, 2, 7, true},
		{"absolute before block", offsetSpec{str: "=90", exists: true}, 100, 0, 0, false},
		{"negative int", offsetSpec{num: -1, isNum: true, exists: true}, 0, 0, 0, false},
		{"missing", offsetSpec{}, 0, 0, 0, false},
		{"garbage", offsetSpec{str: "abc", exists: true}, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, bit, err := tt.spec.resolve(tt.addr)
			if tt.ok && err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if offset != tt.offset || bit != tt.bit {
				t.Errorf("resolve = (%d, %d), want (%d, %d)", offset, bit, tt.offset, tt.bit)
			}
		})
	}
}

func TestParseIntHexAddresses(t *testing.T) {
	if v, err := parseInt("0x1F4"); err != nil || v != 500 {
		t.Errorf("parseInt(0x1F4) = (%d, %v), want 500", v, err)
	}
	if v, err := parseInt("500"); err != nil || v != 500 {
		t.Errorf("parseInt(500) = (%d, %v)", v, err)
	}
	if _, err := parseInt(""); err == nil {
		t.Error("parseInt(\"\"): expected error")
	}
}

func TestSplitSource(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"10.0.0.1", "10.0.0.1", 502},
		{"10.0.0.1:5020", "10.0.0.1", 5020},
		{"plc.local", "plc.local", 502},
	}
	for _, tt := range tests {
		host, port := splitSource(tt.in, 502)
		if host != tt.host || port != tt.port {
			t.Errorf("splitSource(%q) = (%q, %d), want (%q, %d)", tt.in, host, port, tt.host, tt.port)
		}
	}
}

func TestShutdownClosesClient(t *testing.T) {
	client := &fakeClient{regs: []uint16{0}}
	h := newHarness(t, minimalCfg, client)
	if err := h.adapter.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if client.closed != 1 {
		t.Errorf("closed = %d, want 1", client.closed)
	}
}

const minimalCfg = `
version: 1
proto:
  name: modbus/tcp
  source: 10.0.0.1
pull:
  - reg: h0
    count: 1
    process: []
`
