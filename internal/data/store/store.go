// Package store provides the durable key/value backends behind the resolution
// cache.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dtsresolve/internal/core/ports"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	// Path is a file for sqlite and a directory for badger.
	Path string
	// Namespace partitions keys, normally the registry base URL.
	Namespace string
	// TTL bounds entry age; zero keeps entries forever.
	TTL time.Duration
	// Logger receives backend diagnostics; nil disables them.
	Logger *slog.Logger
}

// Open returns the configured backend.
func Open(cfg Config) (ports.DurableStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSQLite:
		return OpenSQLite(cfg.Path, cfg.Namespace, cfg.TTL)
	case BackendBadger:
		return OpenBadger(BadgerConfig{
			Path:       cfg.Path,
			Namespace:  cfg.Namespace,
			TTL:        cfg.TTL,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
			Logger:     cfg.Logger,
		})
	case BackendMemory:
		return OpenBadger(BadgerConfig{
			InMemory:  true,
			Namespace: cfg.Namespace,
			TTL:       cfg.TTL,
			Logger:    cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

func namespaceOrDefault(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return "default"
	}
	return ns
}
