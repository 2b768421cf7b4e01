package config

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/exports"
	"github.com/marmos91/nbdgo/pkg/filter/log"
	"github.com/marmos91/nbdgo/pkg/filter/readonly"
)

// BuildExports constructs the server's exports.List from configuration:
// each configured export gets its plugin and filter chain built and
// wired into a backend.Chain, then registered by name.
//
// This is the NBD-domain analogue of the teacher's InitializeRegistry:
// same "create each named resource, register it, fail fast on conflict"
// shape, now producing an exports.List instead of a share/store registry.
func BuildExports(ctx context.Context, cfg *Config) (*exports.List, error) {
	if len(cfg.Exports) == 0 {
		return nil, fmt.Errorf("no exports configured: at least one export is required")
	}

	list := exports.NewList()
	list.SetUseDefault(cfg.DefaultExport != "")

	debugFlags := backend.NewDebugFlags()
	for pluginType, flags := range cfg.Debug {
		for flag, value := range flags {
			debugFlags.Set(pluginType, flag, value)
		}
	}

	for name, exportCfg := range cfg.Exports {
		logger.Debug("building export", "name", name, "plugin", exportCfg.Plugin.Type)

		plugin, err := CreatePlugin(ctx, name, exportCfg.Plugin)
		if err != nil {
			return nil, fmt.Errorf("export %q: creating plugin: %w", name, err)
		}

		factories, err := CreateFilterFactories(exportCfg.Filters)
		if err != nil {
			return nil, fmt.Errorf("export %q: creating filters: %w", name, err)
		}

		if traced(debugFlags, exportCfg.Plugin.Type) {
			factories = append([]backend.FilterFactory{traceFactory()}, factories...)
		}

		if exportCfg.ReadOnly {
			factories = append([]backend.FilterFactory{readonlyFactory()}, factories...)
		}

		chain, err := backend.NewChain(plugin, factories)
		if err != nil {
			return nil, fmt.Errorf("export %q: building chain: %w", name, err)
		}

		if err := list.Add(&exports.Export{
			Name:        name,
			Description: exportCfg.Description,
			Chain:       chain,
			ReadOnly:    exportCfg.ReadOnly,
		}); err != nil {
			return nil, fmt.Errorf("registering export %q: %w", name, err)
		}

		logger.Info("export registered", "name", name, "plugin", exportCfg.Plugin.Type, "read_only", exportCfg.ReadOnly)
	}

	// Ensure the default export, if named, actually landed in the list
	// (Validate already checks this against raw config, but BuildExports
	// is the authority once chains are constructed).
	if cfg.DefaultExport != "" {
		if _, ok := list.Lookup(cfg.DefaultExport); !ok {
			return nil, fmt.Errorf("default_export %q was not registered", cfg.DefaultExport)
		}
	}

	for _, unused := range debugFlags.Unused() {
		logger.Warn("debug flag was never consulted", "plugin", unused.Plugin, "flag", unused.Flag)
	}

	return list, nil
}

// traced reports whether debug.<pluginType>.trace is set to a truthy
// value, forcing the log filter in front of that export's plugin.
func traced(flags *backend.DebugFlags, pluginType string) bool {
	v, ok := flags.Get(pluginType, "trace")
	return ok && v != "" && v != "0" && v != "false"
}

func traceFactory() backend.FilterFactory {
	return func(next backend.Link) (backend.Filter, error) {
		return log.New(next)
	}
}

// readonlyFactory wraps the export's plugin-level ReadOnly flag as a
// forced outermost readonly filter, independent of any explicit
// "readonly" entry already present in the filter chain.
func readonlyFactory() backend.FilterFactory {
	return func(next backend.Link) (backend.Filter, error) {
		return readonly.New(next)
	}
}
