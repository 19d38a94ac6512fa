package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app atomic.Pointer[App]
}

func NewHealthService(app *App) *HealthService {
	s := &HealthService{}
	s.app.Store(app)
	return s
}

// SetApp points the service at a replacement App, e.g. after a config reload.
func (s *HealthService) SetApp(app *App) {
	s.app.Store(app)
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	a := s.app.Load()
	if a == nil || a.expander == nil {
		status.Status = "down"
		status.Components["engine"] = "missing"
		return status
	}
	status.Components["engine"] = "ok"
	status.Components["registry"] = a.registry.BaseURL

	stats := a.memo.Stats()
	status.Components["memo"] = fmt.Sprintf("ok (%d/%d entries, %d hits, %d misses)", stats.Len, stats.Capacity, stats.Hits, stats.Misses)

	if a.durable != nil {
		if _, _, err := a.durable.Get(ctx, "health:probe"); err != nil {
			status.Status = "degraded"
			status.Components["durable_cache"] = "error: " + err.Error()
		} else {
			status.Components["durable_cache"] = "ok (" + a.Config.Cache.Backend + ")"
		}
	} else if a.Config.Cache.Enabled {
		status.Status = "degraded"
		status.Components["durable_cache"] = "missing but enabled in config"
	}

	if a.writer != nil {
		if count, ok, err := a.writer.spoolPending(ctx); err != nil {
			status.Status = "degraded"
			status.Components["write_spool"] = "error: " + err.Error()
		} else if ok {
			status.Components["write_spool"] = fmt.Sprintf("ok (%d pending)", count)
		}
	}

	return status
}
