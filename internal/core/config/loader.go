package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/registry"
	"dtsresolve/internal/shared/version"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to DefaultConfig when the file does
// not exist and missingOK is set.
func LoadOrDefault(path string, missingOK bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if missingOK && errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return nil, err
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Registry.BaseURL) == "" {
		cfg.Registry.BaseURL = registry.DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Registry.TypeScope) == "" {
		cfg.Registry.TypeScope = registry.DefaultTypeScope
	}
	if strings.TrimSpace(cfg.Registry.TypesHeader) == "" {
		cfg.Registry.TypesHeader = registry.DefaultTypesHeader
	}

	if cfg.Resolve.Concurrency <= 0 {
		cfg.Resolve.Concurrency = 4
	}
	if cfg.Resolve.SubpathConcurrency <= 0 {
		cfg.Resolve.SubpathConcurrency = 4
	}
	if strings.TrimSpace(cfg.Resolve.VisitedScope) == "" {
		cfg.Resolve.VisitedScope = string(model.ScopeRequest)
	}
	if cfg.Resolve.MemoCapacity <= 0 {
		cfg.Resolve.MemoCapacity = 4096
	}

	if strings.TrimSpace(cfg.Cache.Backend) == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if strings.TrimSpace(cfg.Cache.Path) == "" {
		cfg.Cache.Path = "data/cache/dtsresolve.db"
	}

	if cfg.WriteQueue.MemoryCapacity <= 0 {
		cfg.WriteQueue.MemoryCapacity = 512
	}
	if cfg.WriteQueue.BatchSize <= 0 {
		cfg.WriteQueue.BatchSize = 64
	}
	if cfg.WriteQueue.FlushInterval <= 0 {
		cfg.WriteQueue.FlushInterval = 100 * time.Millisecond
	}
	if cfg.WriteQueue.ShutdownDrainTimeout <= 0 {
		cfg.WriteQueue.ShutdownDrainTimeout = 10 * time.Second
	}
	if cfg.WriteQueue.RetryBaseDelay <= 0 {
		cfg.WriteQueue.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.WriteQueue.RetryMaxDelay <= 0 {
		cfg.WriteQueue.RetryMaxDelay = 30 * time.Second
	}
	if strings.TrimSpace(cfg.WriteQueue.SpoolPath) == "" {
		cfg.WriteQueue.SpoolPath = "data/cache/write-spool.db"
	}

	if cfg.Transport.Timeout <= 0 {
		cfg.Transport.Timeout = 30 * time.Second
	}
	if cfg.Transport.RetryMax == 0 {
		cfg.Transport.RetryMax = 3
	}
	if cfg.Transport.RetryWaitMin <= 0 {
		cfg.Transport.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.Transport.RetryWaitMax <= 0 {
		cfg.Transport.RetryWaitMax = 5 * time.Second
	}
	if cfg.Transport.RateLimit == 0 {
		cfg.Transport.RateLimit = 20
	}
	if cfg.Transport.Burst <= 0 {
		cfg.Transport.Burst = 10
	}
	if strings.TrimSpace(cfg.Transport.UserAgent) == "" {
		cfg.Transport.UserAgent = "dtsresolve/" + version.Version
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
}

func normalize(cfg *Config) {
	cfg.Registry.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Registry.BaseURL), "/")
	cfg.Registry.TypeScope = strings.TrimSpace(cfg.Registry.TypeScope)
	cfg.Registry.TypesHeader = strings.TrimSpace(cfg.Registry.TypesHeader)
	cfg.Resolve.VisitedScope = strings.ToLower(strings.TrimSpace(cfg.Resolve.VisitedScope))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Cache.Path = strings.TrimSpace(cfg.Cache.Path)
	cfg.Cache.Namespace = strings.TrimSpace(cfg.Cache.Namespace)
	cfg.WriteQueue.SpoolPath = strings.TrimSpace(cfg.WriteQueue.SpoolPath)
	cfg.Output.File = strings.TrimSpace(cfg.Output.File)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)

	if len(cfg.Packages) > 0 {
		packages := make(map[string]string, len(cfg.Packages))
		for name, ver := range cfg.Packages {
			name = strings.TrimSpace(name)
			ver = strings.TrimSpace(ver)
			if ver == "" {
				ver = model.DefaultVersion
			}
			packages[name] = ver
		}
		cfg.Packages = packages
	}
	cfg.Exclude.Subpaths = compactPatterns(cfg.Exclude.Subpaths)
	cfg.Exclude.URLs = compactPatterns(cfg.Exclude.URLs)
}

func compactPatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
