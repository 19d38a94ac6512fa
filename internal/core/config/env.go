package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: DTSRESOLVE_[SECTION]_[KEY] (e.g., DTSRESOLVE_REGISTRY_BASE_URL).
func ApplyEnvOverrides(cfg *Config) {
	// Registry
	setEnvString(&cfg.Registry.BaseURL, "DTSRESOLVE_REGISTRY_BASE_URL")
	setEnvString(&cfg.Registry.TypeScope, "DTSRESOLVE_REGISTRY_TYPE_SCOPE")
	setEnvString(&cfg.Registry.TypesHeader, "DTSRESOLVE_REGISTRY_TYPES_HEADER")

	// Resolve
	setEnvInt(&cfg.Resolve.Concurrency, "DTSRESOLVE_RESOLVE_CONCURRENCY")
	setEnvInt(&cfg.Resolve.SubpathConcurrency, "DTSRESOLVE_RESOLVE_SUBPATH_CONCURRENCY")
	setEnvString(&cfg.Resolve.VisitedScope, "DTSRESOLVE_RESOLVE_VISITED_SCOPE")
	setEnvInt(&cfg.Resolve.MemoCapacity, "DTSRESOLVE_RESOLVE_MEMO_CAPACITY")
	setEnvDuration(&cfg.Resolve.Timeout, "DTSRESOLVE_RESOLVE_TIMEOUT")

	// Cache
	setEnvBool(&cfg.Cache.Enabled, "DTSRESOLVE_CACHE_ENABLED")
	setEnvString(&cfg.Cache.Backend, "DTSRESOLVE_CACHE_BACKEND")
	setEnvString(&cfg.Cache.Path, "DTSRESOLVE_CACHE_PATH")
	setEnvString(&cfg.Cache.Namespace, "DTSRESOLVE_CACHE_NAMESPACE")
	setEnvDuration(&cfg.Cache.TTL, "DTSRESOLVE_CACHE_TTL")

	// Write queue
	setEnvBoolPtr(&cfg.WriteQueue.Enabled, "DTSRESOLVE_WRITE_QUEUE_ENABLED")
	setEnvBoolPtr(&cfg.WriteQueue.PersistentEnabled, "DTSRESOLVE_WRITE_QUEUE_PERSISTENT_ENABLED")
	setEnvString(&cfg.WriteQueue.SpoolPath, "DTSRESOLVE_WRITE_QUEUE_SPOOL_PATH")
	setEnvInt(&cfg.WriteQueue.BatchSize, "DTSRESOLVE_WRITE_QUEUE_BATCH_SIZE")

	// Transport
	setEnvDuration(&cfg.Transport.Timeout, "DTSRESOLVE_TRANSPORT_TIMEOUT")
	setEnvInt(&cfg.Transport.RetryMax, "DTSRESOLVE_TRANSPORT_RETRY_MAX")
	setEnvFloat64(&cfg.Transport.RateLimit, "DTSRESOLVE_TRANSPORT_RATE_LIMIT")
	setEnvInt(&cfg.Transport.Burst, "DTSRESOLVE_TRANSPORT_BURST")
	setEnvString(&cfg.Transport.UserAgent, "DTSRESOLVE_TRANSPORT_USER_AGENT")

	// Output
	setEnvString(&cfg.Output.File, "DTSRESOLVE_OUTPUT_FILE")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "DTSRESOLVE_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "DTSRESOLVE_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "DTSRESOLVE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "DTSRESOLVE_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "DTSRESOLVE_OBSERVABILITY_ENABLE_METRICS")

	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
