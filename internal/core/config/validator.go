package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"dtsresolve/internal/engine/model"
)

// Validate returns every problem found in cfg, in section order.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validateRegistry,
		validatePackages,
		validateResolve,
		validateCache,
		validateWriteQueue,
		validateTransport,
		validateExclude,
		validateOutput,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateRegistry(cfg *Config) error {
	u, err := url.Parse(cfg.Registry.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("registry.base_url must be an absolute http(s) URL, got %q", cfg.Registry.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("registry.base_url must not carry a query or fragment")
	}
	if strings.ContainsAny(cfg.Registry.TypesHeader, " \t:") {
		return fmt.Errorf("registry.types_header %q is not a valid header name", cfg.Registry.TypesHeader)
	}
	return nil
}

func validatePackages(cfg *Config) error {
	for name, ver := range cfg.Packages {
		if name == "" {
			return fmt.Errorf("packages: empty package name")
		}
		if strings.ContainsAny(name, " \t'\"") {
			return fmt.Errorf("packages: invalid package name %q", name)
		}
		if strings.ContainsAny(ver, " \t'\"/") {
			return fmt.Errorf("packages.%s: invalid version %q", name, ver)
		}
	}
	return nil
}

func validateResolve(cfg *Config) error {
	if !model.VisitedScope(cfg.Resolve.VisitedScope).Valid() {
		return fmt.Errorf("resolve.visited_scope must be one of: request, crawl")
	}
	if cfg.Resolve.Timeout < 0 {
		return fmt.Errorf("resolve.timeout must not be negative")
	}
	return nil
}

func validateCache(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("cache.backend must be one of: sqlite, badger, memory")
	}
	if cfg.Cache.Backend != "memory" && cfg.Cache.Path == "" {
		return fmt.Errorf("cache.path must not be empty")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	return nil
}

func validateWriteQueue(cfg *Config) error {
	wq := cfg.WriteQueue
	if wq.RetryMaxDelay < wq.RetryBaseDelay {
		return fmt.Errorf("write_queue.retry_max_delay must be >= write_queue.retry_base_delay")
	}
	if wq.PersistentQueueEnabled() && wq.SpoolPath == "" {
		return fmt.Errorf("write_queue.spool_path must be set when persistent_enabled is true")
	}
	if wq.PersistentQueueEnabled() && cfg.Cache.Backend == "sqlite" && samePath(wq.SpoolPath, cfg.Cache.Path) {
		return fmt.Errorf("write_queue.spool_path and cache.path share the same file %q", wq.SpoolPath)
	}
	return nil
}

func validateTransport(cfg *Config) error {
	t := cfg.Transport
	if t.RetryMax < 0 {
		return fmt.Errorf("transport.retry_max must not be negative")
	}
	if t.RetryWaitMax < t.RetryWaitMin {
		return fmt.Errorf("transport.retry_wait_max must be >= transport.retry_wait_min")
	}
	if t.MaxBodyBytes < 0 {
		return fmt.Errorf("transport.max_body_bytes must not be negative")
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for i, p := range cfg.Exclude.Subpaths {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("exclude.subpaths[%d] %q: %w", i, p, err)
		}
	}
	for i, p := range cfg.Exclude.URLs {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("exclude.urls[%d] %q: %w", i, p, err)
		}
	}
	return nil
}

func validateOutput(cfg *Config) error {
	if cfg.Output.File == "" {
		return nil
	}
	if cfg.Cache.Backend == "sqlite" && samePath(cfg.Output.File, cfg.Cache.Path) {
		return fmt.Errorf("output conflict: output.file and cache.path share the same path %q", cfg.Output.File)
	}
	if samePath(cfg.Output.File, cfg.WriteQueue.SpoolPath) {
		return fmt.Errorf("output conflict: output.file and write_queue.spool_path share the same path %q", cfg.Output.File)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Enabled && (cfg.Observability.Port < 1 || cfg.Observability.Port > 65535) {
		return fmt.Errorf("observability.port must be in 1..65535, got %d", cfg.Observability.Port)
	}
	if cfg.Observability.EnableTracing && cfg.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint must be set when enable_tracing is true")
	}
	return nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

// CompileGlobs compiles patterns already accepted by Validate.
func CompileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}
