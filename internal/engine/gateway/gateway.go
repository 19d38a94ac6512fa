// Package gateway is the single point through which resolution reads from the
// registry. Lookups go memo -> durable cache -> transport.
package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/engine/registry"
	"dtsresolve/internal/shared/observability"
)

const (
	kindContent = "content"
	kindTypes   = "types"
)

type Gateway struct {
	transport   ports.Transport
	memo        *Memo
	durable     ports.DurableCache
	typesHeader string
	logger      *slog.Logger
	group       singleflight.Group
}

type Option func(*Gateway)

// WithDurableCache enables the persistent layer between memo and transport.
func WithDurableCache(cache ports.DurableCache) Option {
	return func(g *Gateway) {
		g.durable = cache
	}
}

// WithTypesHeader overrides the response header naming the entry URL.
func WithTypesHeader(header string) Option {
	return func(g *Gateway) {
		if h := strings.TrimSpace(header); h != "" {
			g.typesHeader = h
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New builds a gateway over transport. memo is owned by the caller and may be
// shared between gateways; nil allocates a private one.
func New(transport ports.Transport, memo *Memo, opts ...Option) *Gateway {
	if memo == nil {
		memo = NewMemo(0)
	}
	g := &Gateway{
		transport:   transport,
		memo:        memo,
		typesHeader: registry.DefaultTypesHeader,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Memo() *Memo { return g.memo }

// FetchText returns the body of url. A non-2xx status or an empty body yields
// "" with a nil error; an error means the request could not complete.
func (g *Gateway) FetchText(ctx context.Context, url string) (string, error) {
	return g.lookup(ctx, kindContent, ContentKey(url), url, func(resp *ports.Response) string {
		if !resp.OK() {
			return ""
		}
		return string(resp.Body)
	})
}

// FetchDeclarationEntryURL returns the declaration entry advertised for
// packageURL through the types header, or "" when there is none. A relative
// header value is resolved against packageURL.
func (g *Gateway) FetchDeclarationEntryURL(ctx context.Context, packageURL string) (string, error) {
	return g.lookup(ctx, kindTypes, TypesKey(packageURL), packageURL, func(resp *ports.Response) string {
		value := strings.TrimSpace(resp.Header.Get(g.typesHeader))
		if value == "" {
			return ""
		}
		return resolveEntry(packageURL, value)
	})
}

func (g *Gateway) lookup(ctx context.Context, kind, key, target string, extract func(*ports.Response) string) (string, error) {
	if v, ok := g.memo.Get(key); ok {
		observability.CacheHitsTotal.WithLabelValues("memo").Inc()
		return v, nil
	}

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		if v, ok := g.memo.Get(key); ok {
			observability.CacheHitsTotal.WithLabelValues("memo").Inc()
			return v, nil
		}
		if v, ok := g.readDurable(ctx, key); ok {
			g.memo.Put(key, v)
			return v, nil
		}

		started := time.Now()
		resp, err := g.transport.Get(ctx, target)
		observability.FetchDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
		if err != nil {
			observability.FetchTotal.WithLabelValues(kind, "error").Inc()
			return "", err
		}

		value := extract(resp)
		if value == "" {
			observability.FetchTotal.WithLabelValues(kind, "empty").Inc()
			g.logger.Debug("empty registry response", "url", target, "kind", kind, "status", resp.StatusCode)
			return "", nil
		}
		observability.FetchTotal.WithLabelValues(kind, "ok").Inc()

		g.memo.Put(key, value)
		g.writeDurable(ctx, key, value)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Gateway) readDurable(ctx context.Context, key string) (string, bool) {
	if g.durable == nil {
		return "", false
	}
	v, ok, err := g.durable.Get(ctx, key)
	if err != nil {
		g.logger.Warn("durable cache read failed", "key", key, "error", err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	observability.CacheHitsTotal.WithLabelValues("durable").Inc()
	return v, true
}

func (g *Gateway) writeDurable(ctx context.Context, key, value string) {
	if g.durable == nil {
		return
	}
	if err := g.durable.Put(ctx, key, value); err != nil {
		g.logger.Warn("durable cache write failed", "key", key, "error", err)
	}
}

func resolveEntry(packageURL, value string) string {
	ref, err := url.Parse(value)
	if err != nil || ref.IsAbs() {
		return value
	}
	base, err := url.Parse(packageURL)
	if err != nil {
		return value
	}
	return base.ResolveReference(ref).String()
}
