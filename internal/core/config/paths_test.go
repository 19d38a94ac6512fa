package config

import (
	"path/filepath"
	"testing"
)

func TestResolvePaths_DefaultLayout(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output.File = "types.json"

	got := ResolvePaths(cfg, root)
	if got.CachePath != filepath.Join(root, "data/cache/dtsresolve.db") {
		t.Fatalf("unexpected cache path: %q", got.CachePath)
	}
	if got.SpoolPath != filepath.Join(root, "data/cache/write-spool.db") {
		t.Fatalf("unexpected spool path: %q", got.SpoolPath)
	}
	if got.OutputFile != filepath.Join(root, "types.json") {
		t.Fatalf("unexpected output path: %q", got.OutputFile)
	}
}

func TestResolvePaths_AbsoluteOverrides(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	cfg := DefaultConfig()
	cfg.Cache.Path = filepath.Join(other, "cache.db")

	got := ResolvePaths(cfg, root)
	if got.CachePath != filepath.Join(other, "cache.db") {
		t.Fatalf("expected absolute cache path to be kept, got %q", got.CachePath)
	}
	if got.OutputFile != "" {
		t.Fatalf("expected empty output file, got %q", got.OutputFile)
	}
}

func TestResolvePaths_MemoryBackendHasNoCachePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Backend = "memory"
	if got := ResolvePaths(cfg, t.TempDir()); got.CachePath != "" {
		t.Fatalf("expected no cache path for memory backend, got %q", got.CachePath)
	}
}

func TestResolveRelative(t *testing.T) {
	tests := []struct {
		base, value, expected string
	}{
		{"/srv", "cache.db", "/srv/cache.db"},
		{"/srv", "/var/cache.db", "/var/cache.db"},
		{"/srv", "  ", ""},
		{"/srv", "./a/../b.db", "/srv/b.db"},
	}
	for _, tt := range tests {
		if got := ResolveRelative(tt.base, tt.value); got != tt.expected {
			t.Errorf("ResolveRelative(%q, %q) = %q, expected %q", tt.base, tt.value, got, tt.expected)
		}
	}
}
