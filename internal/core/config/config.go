package config

import (
	"time"

	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/registry"
)

// DefaultPath is the configuration file looked up when -config is not given.
const DefaultPath = "dtsresolve.toml"

type Config struct {
	Version       int               `toml:"version"`
	Registry      Registry          `toml:"registry"`
	Packages      map[string]string `toml:"packages"`
	Resolve       Resolve           `toml:"resolve"`
	Cache         Cache             `toml:"cache"`
	WriteQueue    WriteQueueConfig  `toml:"write_queue"`
	Transport     Transport         `toml:"transport"`
	Exclude       Exclude           `toml:"exclude"`
	Output        Output            `toml:"output"`
	Observability Observability     `toml:"observability"`
}

type Registry struct {
	BaseURL     string `toml:"base_url"`
	TypeScope   string `toml:"type_scope"`
	TypesHeader string `toml:"types_header"`
}

type Resolve struct {
	Concurrency        int           `toml:"concurrency"`
	SubpathConcurrency int           `toml:"subpath_concurrency"`
	VisitedScope       string        `toml:"visited_scope"`
	MemoCapacity       int           `toml:"memo_capacity"`
	Timeout            time.Duration `toml:"timeout"`
}

type Cache struct {
	Enabled   bool          `toml:"enabled"`
	Backend   string        `toml:"backend"`
	Path      string        `toml:"path"`
	Namespace string        `toml:"namespace"`
	TTL       time.Duration `toml:"ttl"`
}

type WriteQueueConfig struct {
	Enabled              *bool         `toml:"enabled"`
	MemoryCapacity       int           `toml:"memory_capacity"`
	PersistentEnabled    *bool         `toml:"persistent_enabled"`
	SpoolPath            string        `toml:"spool_path"`
	BatchSize            int           `toml:"batch_size"`
	FlushInterval        time.Duration `toml:"flush_interval"`
	ShutdownDrainTimeout time.Duration `toml:"shutdown_drain_timeout"`
	RetryBaseDelay       time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay        time.Duration `toml:"retry_max_delay"`
	SyncFallback         *bool         `toml:"sync_fallback"`
}

type Transport struct {
	Timeout      time.Duration `toml:"timeout"`
	RetryMax     int           `toml:"retry_max"`
	RetryWaitMin time.Duration `toml:"retry_wait_min"`
	RetryWaitMax time.Duration `toml:"retry_wait_max"`
	RateLimit    float64       `toml:"rate_limit"`
	Burst        int           `toml:"burst"`
	UserAgent    string        `toml:"user_agent"`
	MaxBodyBytes int64         `toml:"max_body_bytes"`
}

type Exclude struct {
	Subpaths []string `toml:"subpaths"` // export sub-paths, e.g. "internal/*"
	URLs     []string `toml:"urls"`     // crawl targets, e.g. "*/node.d.ts"
}

type Output struct {
	File string `toml:"file"`
	Tree bool   `toml:"tree"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	EnableMetrics bool   `toml:"enable_metrics"`
	EnableTracing bool   `toml:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
}

// DefaultConfig is used when no configuration file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func (w WriteQueueConfig) QueueEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

func (w WriteQueueConfig) PersistentQueueEnabled() bool {
	return w.PersistentEnabled != nil && *w.PersistentEnabled
}

func (w WriteQueueConfig) SyncFallbackEnabled() bool {
	return w.SyncFallback == nil || *w.SyncFallback
}

// RegistryConfig builds the registry description used by the engine.
func (c *Config) RegistryConfig() registry.Registry {
	return registry.New(c.Registry.BaseURL, c.Registry.TypeScope)
}

// PackageRefs returns the configured packages in name order.
func (c *Config) PackageRefs() []model.PackageRef {
	return model.SortedRefs(c.Packages)
}

func (c *Config) Scope() model.VisitedScope {
	return model.VisitedScope(c.Resolve.VisitedScope)
}
