package config

import (
	"path/filepath"
	"strings"
)

// ResolvedPaths holds the on-disk locations derived from a loaded config.
type ResolvedPaths struct {
	CachePath  string
	SpoolPath  string
	OutputFile string
}

// ResolvePaths anchors relative paths in cfg at baseDir, normally the
// directory containing the configuration file.
func ResolvePaths(cfg *Config, baseDir string) ResolvedPaths {
	resolved := ResolvedPaths{
		SpoolPath: ResolveRelative(baseDir, cfg.WriteQueue.SpoolPath),
	}
	if cfg.Cache.Backend != "memory" {
		resolved.CachePath = ResolveRelative(baseDir, cfg.Cache.Path)
	}
	if strings.TrimSpace(cfg.Output.File) != "" {
		resolved.OutputFile = ResolveRelative(baseDir, cfg.Output.File)
	}
	return resolved
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}
