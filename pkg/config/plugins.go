package config

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/filter/cache"
	"github.com/marmos91/nbdgo/pkg/filter/log"
	"github.com/marmos91/nbdgo/pkg/filter/readonly"
	"github.com/marmos91/nbdgo/pkg/filter/truncate"
	"github.com/marmos91/nbdgo/pkg/plugin/badger"
	"github.com/marmos91/nbdgo/pkg/plugin/file"
	"github.com/marmos91/nbdgo/pkg/plugin/memory"
	"github.com/marmos91/nbdgo/pkg/plugin/s3"
	"github.com/mitchellh/mapstructure"
)

// CreatePlugin builds a terminal backend.Plugin from configuration,
// mirroring the teacher's pkg/config/stores.go type-switch-per-type
// construction pattern.
func CreatePlugin(ctx context.Context, name string, cfg PluginConfig) (backend.Plugin, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryPlugin(name, cfg)
	case "file":
		return createFilePlugin(name, cfg)
	case "s3":
		return createS3Plugin(ctx, name, cfg)
	case "badger":
		return createBadgerPlugin(name, cfg)
	default:
		return nil, fmt.Errorf("unknown plugin type %q", cfg.Type)
	}
}

func createMemoryPlugin(name string, cfg PluginConfig) (backend.Plugin, error) {
	var memCfg memory.Config
	if err := mapstructure.Decode(cfg.Memory, &memCfg); err != nil {
		return nil, fmt.Errorf("invalid memory plugin config: %w", err)
	}
	return memory.New(name, memCfg), nil
}

func createFilePlugin(name string, cfg PluginConfig) (backend.Plugin, error) {
	var fileCfg file.Config
	if err := mapstructure.Decode(cfg.File, &fileCfg); err != nil {
		return nil, fmt.Errorf("invalid file plugin config: %w", err)
	}
	return file.New(name, fileCfg), nil
}

func createS3Plugin(ctx context.Context, name string, cfg PluginConfig) (backend.Plugin, error) {
	var s3Cfg s3.Config
	if err := mapstructure.Decode(cfg.S3, &s3Cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 plugin config: %w", err)
	}
	client, err := s3.NewClient(ctx, s3Cfg)
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return s3.New(name, client, s3Cfg), nil
}

func createBadgerPlugin(name string, cfg PluginConfig) (backend.Plugin, error) {
	var badgerCfg badger.Config
	if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger plugin config: %w", err)
	}
	return badger.New(name, badgerCfg)
}

// CreateFilterFactories builds an ordered slice of backend.FilterFactory
// from configuration, outermost first, for backend.NewChain.
func CreateFilterFactories(cfgs []FilterConfig) ([]backend.FilterFactory, error) {
	factories := make([]backend.FilterFactory, 0, len(cfgs))
	for i, fc := range cfgs {
		factory, err := createFilterFactory(fc)
		if err != nil {
			return nil, fmt.Errorf("filter #%d: %w", i, err)
		}
		factories = append(factories, factory)
	}
	return factories, nil
}

func createFilterFactory(cfg FilterConfig) (backend.FilterFactory, error) {
	switch cfg.Type {
	case "readonly":
		return func(next backend.Link) (backend.Filter, error) {
			return readonly.New(next)
		}, nil
	case "log":
		return func(next backend.Link) (backend.Filter, error) {
			return log.New(next)
		}, nil
	case "truncate":
		var tCfg truncate.Config
		if err := mapstructure.Decode(cfg.Truncate, &tCfg); err != nil {
			return nil, fmt.Errorf("invalid truncate filter config: %w", err)
		}
		return func(next backend.Link) (backend.Filter, error) {
			return truncate.New(next, tCfg)
		}, nil
	case "cache":
		var cCfg cache.Config
		if err := mapstructure.Decode(cfg.Cache, &cCfg); err != nil {
			return nil, fmt.Errorf("invalid cache filter config: %w", err)
		}
		return func(next backend.Link) (backend.Filter, error) {
			return cache.New(next, cCfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown filter type %q", cfg.Type)
	}
}
