package engine

// ─────────────────────────────────────────────────────────────────────────────
// Puller registry
// ─────────────────────────────────────────────────────────────────────────────

// FetchFunc performs one configured read against the source device and
// returns the raw protocol payload (e.g. []uint16 register block, []bool coil
// block, []models.Value of typed tag reads, []gosnmp.SnmpPDU varbind list).
type FetchFunc func() (any, error)

// ProcessFunc consumes a raw payload and writes zero or more data points.
// Process functions run on the processor worker, never on the scheduler.
type ProcessFunc func(payload any) error

// Puller pairs one fetch function with the ordered process functions bound to
// its payload.
type Puller struct {
	Fetch   FetchFunc
	Process []ProcessFunc
}

// Registry holds the pullers built by the protocol adapter during init.
// It is append-only while the adapter initialises and immutable once the
// engine starts cycling; the scheduler iterates in registration order, which
// also defines the per-cycle output order.
type Registry struct {
	pullers []Puller
}

// Register appends a puller. Called by protocol adapters only, during init.
func (r *Registry) Register(fetch FetchFunc, process []ProcessFunc) {
	r.pullers = append(r.pullers, Puller{Fetch: fetch, Process: process})
}

// Len returns the number of registered pullers.
func (r *Registry) Len() int { return len(r.pullers) }

// Pullers returns the registered pullers in registration order.
func (r *Registry) Pullers() []Puller { return r.pullers }
