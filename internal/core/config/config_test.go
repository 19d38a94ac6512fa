package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dtsresolve/internal/engine/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dtsresolve.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[registry]
base_url = "https://cdn.example.com/"
type_scope = "@types/"

[packages]
react = "18.2.0"
"@hookform/resolvers" = "3.3.0"
zod = ""

[resolve]
concurrency = 8
visited_scope = "Crawl"
timeout = "2m"

[cache]
enabled = true
backend = "badger"
path = "cache/badger"
ttl = "24h"

[write_queue]
batch_size = 16
sync_fallback = false

[transport]
retry_max = 5
rate_limit = 2.5

[exclude]
subpaths = ["internal/*", " "]

[output]
file = "types.json"
tree = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Registry.BaseURL != "https://cdn.example.com" {
		t.Errorf("Expected trimmed base url, got %q", cfg.Registry.BaseURL)
	}
	if cfg.Registry.TypesHeader != "X-TypeScript-Types" {
		t.Errorf("Expected default types header, got %q", cfg.Registry.TypesHeader)
	}
	if len(cfg.Packages) != 3 || cfg.Packages["zod"] != model.DefaultVersion {
		t.Errorf("Unexpected packages: %v", cfg.Packages)
	}
	if cfg.Resolve.Concurrency != 8 || cfg.Resolve.SubpathConcurrency != 4 {
		t.Errorf("Unexpected concurrency: %+v", cfg.Resolve)
	}
	if cfg.Scope() != model.ScopeCrawl {
		t.Errorf("Expected crawl scope, got %q", cfg.Scope())
	}
	if cfg.Resolve.Timeout != 2*time.Minute {
		t.Errorf("Expected timeout 2m, got %v", cfg.Resolve.Timeout)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Backend != "badger" || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Unexpected cache: %+v", cfg.Cache)
	}
	if cfg.WriteQueue.BatchSize != 16 || cfg.WriteQueue.SyncFallbackEnabled() {
		t.Errorf("Unexpected write queue: %+v", cfg.WriteQueue)
	}
	if !cfg.WriteQueue.QueueEnabled() || cfg.WriteQueue.PersistentQueueEnabled() {
		t.Errorf("Unexpected write queue toggles: %+v", cfg.WriteQueue)
	}
	if cfg.Transport.RetryMax != 5 || cfg.Transport.RateLimit != 2.5 {
		t.Errorf("Unexpected transport: %+v", cfg.Transport)
	}
	if len(cfg.Exclude.Subpaths) != 1 || cfg.Exclude.Subpaths[0] != "internal/*" {
		t.Errorf("Unexpected exclusions: %v", cfg.Exclude.Subpaths)
	}
	if cfg.Output.File != "types.json" || !cfg.Output.Tree {
		t.Errorf("Unexpected output: %+v", cfg.Output)
	}

	refs := cfg.PackageRefs()
	if refs[0].Name != "@hookform/resolvers" || refs[2].Name != "zod" {
		t.Errorf("Expected refs in name order, got %v", refs)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Expected version 1, got %d", cfg.Version)
	}
	if cfg.Registry.BaseURL != "https://esm.sh" {
		t.Errorf("Expected esm.sh default, got %q", cfg.Registry.BaseURL)
	}
	if cfg.Scope() != model.ScopeRequest {
		t.Errorf("Expected request scope by default, got %q", cfg.Scope())
	}
	if cfg.Cache.Enabled {
		t.Error("Expected durable cache disabled by default")
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("Expected sqlite backend, got %q", cfg.Cache.Backend)
	}
	if !strings.HasPrefix(cfg.Transport.UserAgent, "dtsresolve/") {
		t.Errorf("Unexpected user agent %q", cfg.Transport.UserAgent)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", "[registry", "decode"},
		{"version", "version = 3", "unsupported config version"},
		{"base url", "[registry]\nbase_url = \"ftp://x\"", "registry.base_url"},
		{"scope", "[resolve]\nvisited_scope = \"global\"", "resolve.visited_scope"},
		{"backend", "[cache]\nbackend = \"redis\"", "cache.backend"},
		{"glob", "[exclude]\nsubpaths = [\"[a\"]", "exclude.subpaths[0]"},
		{"package", "[packages]\n\"bad name\" = \"1.0.0\"", "invalid package name"},
		{"tracing", "[observability]\nenable_tracing = true", "otlp_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := LoadOrDefault(missing, true)
	if err != nil {
		t.Fatalf("expected default config, got %v", err)
	}
	if cfg.Registry.BaseURL != "https://esm.sh" {
		t.Errorf("unexpected default base url %q", cfg.Registry.BaseURL)
	}

	if _, err := LoadOrDefault(missing, false); err == nil {
		t.Fatal("expected error for explicit missing config")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DTSRESOLVE_REGISTRY_BASE_URL", "https://mirror.example.com/")
	t.Setenv("DTSRESOLVE_RESOLVE_CONCURRENCY", "12")
	t.Setenv("DTSRESOLVE_RESOLVE_VISITED_SCOPE", " CRAWL ")
	t.Setenv("DTSRESOLVE_CACHE_ENABLED", "true")
	t.Setenv("DTSRESOLVE_CACHE_TTL", "1h")
	t.Setenv("DTSRESOLVE_WRITE_QUEUE_ENABLED", "false")
	t.Setenv("DTSRESOLVE_TRANSPORT_RATE_LIMIT", "0.5")
	t.Setenv("DTSRESOLVE_TRANSPORT_RETRY_MAX", "not-a-number")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	if cfg.Registry.BaseURL != "https://mirror.example.com" {
		t.Errorf("unexpected base url %q", cfg.Registry.BaseURL)
	}
	if cfg.Resolve.Concurrency != 12 {
		t.Errorf("unexpected concurrency %d", cfg.Resolve.Concurrency)
	}
	if cfg.Scope() != model.ScopeCrawl {
		t.Errorf("unexpected scope %q", cfg.Scope())
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != time.Hour {
		t.Errorf("unexpected cache %+v", cfg.Cache)
	}
	if cfg.WriteQueue.QueueEnabled() {
		t.Error("expected write queue disabled")
	}
	if cfg.Transport.RateLimit != 0.5 {
		t.Errorf("unexpected rate limit %v", cfg.Transport.RateLimit)
	}
	if cfg.Transport.RetryMax != 3 {
		t.Errorf("invalid override must be ignored, got %d", cfg.Transport.RetryMax)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[packages]\nreact = \"18.2.0\"\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[packages]\nreact = \"18.3.1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Packages["react"] != "18.3.1" {
			t.Fatalf("expected reloaded version, got %v", cfg.Packages)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherIgnoresUnchangedContent(t *testing.T) {
	content := "[packages]\nreact = \"18.2.0\"\n"
	path := writeConfig(t, content)

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Fatal("expected no reload for identical content")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherReloadsOnAtomicRename(t *testing.T) {
	path := writeConfig(t, "[packages]\nreact = \"18.2.0\"\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("[packages]\nzod = \"3.22.2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Packages["zod"] != "3.22.2" {
			t.Fatalf("expected renamed-in config, got %v", cfg.Packages)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher(writeConfig(t, ""), nil)
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()
	w.Stop()
}
