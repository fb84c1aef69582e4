// Package proto maps the configured protocol selector onto an adapter
// implementation. Every adapter follows the same contract: its factory
// validates the proto / pull configuration, opens the underlying transport,
// and registers fetch / process pairs on the engine core; the returned
// adapter's Shutdown releases the transport after the processor has drained.
package proto

import (
	"fmt"
	"log/slog"

	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/proto/enip"
	"github.com/edgewatch/edgepull/proto/modbus"
	"github.com/edgewatch/edgepull/proto/snmp"
)

// NewFactory returns the adapter factory for the configured protocol family.
// Unsupported selectors fail here, before the engine starts.
func NewFactory(cfg *config.Config, logger *slog.Logger) (engine.AdapterFactory, error) {
	switch cfg.Proto.Family {
	case "modbus":
		return func(core *engine.Core) (engine.Adapter, error) {
			return modbus.Init(cfg, core, logger)
		}, nil
	case "enip":
		return func(core *engine.Core) (engine.Adapter, error) {
			return enip.Init(cfg, core, logger)
		}, nil
	case "snmp":
		return func(core *engine.Core) (engine.Adapter, error) {
			return snmp.Init(cfg, core, logger)
		}, nil
	default:
		return nil, fmt.Errorf("proto: unsupported protocol %q", cfg.Proto.Name)
	}
}
