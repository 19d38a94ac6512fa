// Package app wires the resolution engine to its configured transport,
// caches and durable store, and exposes the top-level ResolveAll operation.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"dtsresolve/internal/core/config"
	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/data/httpfetch"
	"dtsresolve/internal/data/store"
	"dtsresolve/internal/engine/crawler"
	"dtsresolve/internal/engine/expander"
	"dtsresolve/internal/engine/gateway"
	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/registry"
	"dtsresolve/internal/shared/observability"
)

type App struct {
	Config *config.Config

	registry  registry.Registry
	transport ports.Transport
	client    *httpfetch.Client
	memo      *gateway.Memo
	gateway   *gateway.Gateway
	expander  *expander.Expander
	logger    *slog.Logger
	baseDir   string

	durable ports.DurableStore
	writer  *cacheWriter

	closeOnce sync.Once
	closeErr  error
}

type Option func(*App)

// WithTransport replaces the HTTP client, mainly for tests.
func WithTransport(t ports.Transport) Option {
	return func(a *App) {
		a.transport = t
	}
}

// WithMemo injects a memo shared with other App instances.
func WithMemo(m *gateway.Memo) Option {
	return func(a *App) {
		a.memo = m
	}
}

// WithDurableStore injects an already opened store instead of opening the
// configured one. The App takes ownership and closes it.
func WithDurableStore(s ports.DurableStore) Option {
	return func(a *App) {
		a.durable = s
	}
}

// WithBaseDir anchors relative paths from the configuration.
func WithBaseDir(dir string) Option {
	return func(a *App) {
		a.baseDir = dir
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &App{
		Config:   cfg,
		registry: cfg.RegistryConfig(),
		logger:   slog.Default(),
		baseDir:  ".",
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.transport == nil {
		a.client = httpfetch.New(httpfetch.Options{
			Timeout:      cfg.Transport.Timeout,
			RetryMax:     cfg.Transport.RetryMax,
			RetryWaitMin: cfg.Transport.RetryWaitMin,
			RetryWaitMax: cfg.Transport.RetryWaitMax,
			RateLimit:    cfg.Transport.RateLimit,
			Burst:        cfg.Transport.Burst,
			UserAgent:    cfg.Transport.UserAgent,
			MaxBodyBytes: cfg.Transport.MaxBodyBytes,
			Logger:       a.logger,
		})
		a.transport = a.client
	}
	if a.memo == nil {
		a.memo = gateway.NewMemo(cfg.Resolve.MemoCapacity)
	}

	subpathSkip, err := config.CompileGlobs(cfg.Exclude.Subpaths)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid exclude.subpaths")
	}
	urlSkip, err := config.CompileGlobs(cfg.Exclude.URLs)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid exclude.urls")
	}

	var durable ports.DurableCache
	if cfg.Cache.Enabled {
		if err := a.openDurable(); err != nil {
			a.closeTransport()
			return nil, err
		}
		spoolPath := config.ResolvePaths(cfg, a.baseDir).SpoolPath
		w, err := newCacheWriter(a.durable, cfg.WriteQueue, spoolPath, a.namespace(), a.logger)
		if err != nil {
			_ = a.durable.Close()
			a.closeTransport()
			return nil, errors.Wrap(err, errors.CodeInternal, "start cache writer")
		}
		a.writer = w
		durable = w
	}

	gwOpts := []gateway.Option{
		gateway.WithTypesHeader(cfg.Registry.TypesHeader),
		gateway.WithLogger(a.logger),
	}
	expOpts := []expander.Option{
		expander.WithVisitedScope(cfg.Scope()),
		expander.WithConcurrency(cfg.Resolve.SubpathConcurrency),
		expander.WithSubpathExclusions(subpathSkip),
		expander.WithLogger(a.logger),
	}
	if durable != nil {
		gwOpts = append(gwOpts, gateway.WithDurableCache(durable))
		expOpts = append(expOpts, expander.WithDurableCache(durable))
	}

	a.gateway = gateway.New(a.transport, a.memo, gwOpts...)
	c := crawler.New(a.gateway, a.registry, crawler.WithSkipPatterns(urlSkip), crawler.WithLogger(a.logger))
	a.expander = expander.New(a.gateway, c, a.registry, expOpts...)
	return a, nil
}

func (a *App) openDurable() error {
	if a.durable != nil {
		return nil
	}
	s, err := store.Open(store.Config{
		Backend:   a.Config.Cache.Backend,
		Path:      config.ResolvePaths(a.Config, a.baseDir).CachePath,
		Namespace: a.namespace(),
		TTL:       a.Config.Cache.TTL,
		Logger:    a.logger,
	})
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "open durable cache"), errors.CtxOperation, "cache.open")
	}
	a.durable = s
	return nil
}

// namespace partitions durable entries and spooled writes by registry unless
// configured explicitly.
func (a *App) namespace() string {
	if a.Config.Cache.Namespace != "" {
		return a.Config.Cache.Namespace
	}
	return a.registry.BaseURL
}

// Memo returns the in-process memo used by this App.
func (a *App) Memo() *gateway.Memo { return a.memo }

// ResolveAll resolves every package concurrently and merges the results in
// input order, later packages overwriting earlier ones on key collisions.
// Individual package failures contribute nothing; only cancellation or an
// expired resolve timeout is returned as an error.
func (a *App) ResolveAll(ctx context.Context, refs []model.PackageRef) (model.DependencyMap, error) {
	requestID := uuid.NewString()
	ctx, span := observability.Tracer.Start(ctx, "app.ResolveAll", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("packages", len(refs)),
	))
	defer span.End()

	if a.Config.Resolve.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Resolve.Timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		observability.ResolveDuration.Observe(time.Since(started).Seconds())
	}()

	logger := a.logger.With("request_id", requestID)
	logger.Info("resolving packages", "count", len(refs))

	visited := model.NewVisitedSet()
	results := make([]model.DependencyMap, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	if limit := a.Config.Resolve.Concurrency; limit > 0 {
		g.SetLimit(limit)
	}
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			deps, err := a.expander.ResolvePackage(gctx, ref, visited)
			if err != nil {
				observability.PackagesTotal.WithLabelValues("canceled").Inc()
				return err
			}
			if len(deps) == 0 {
				observability.PackagesTotal.WithLabelValues("empty").Inc()
				logger.Warn("package produced no declarations", "package", ref.String())
			} else {
				observability.PackagesTotal.WithLabelValues("resolved").Inc()
				logger.Debug("package resolved", "package", ref.String(), "files", len(deps))
			}
			results[i] = deps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, errors.AddContext(err, errors.CtxOperation, "resolve_all")
	}

	merged := make(model.DependencyMap)
	for _, deps := range results {
		merged.Merge(deps)
	}
	span.SetAttributes(attribute.Int("files", len(merged)))
	logger.Info("resolution complete", "files", len(merged), "duration", time.Since(started))
	return merged, nil
}

// Close drains pending durable writes and releases every resource. Errors
// from individual components are aggregated.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		var result *multierror.Error

		drainTimeout := a.Config.WriteQueue.ShutdownDrainTimeout
		if drainTimeout <= 0 {
			drainTimeout = 10 * time.Second
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, drainTimeout)
			defer cancel()
		}
		if a.writer != nil {
			if err := a.writer.stop(ctx); err != nil {
				result = multierror.Append(result, err)
			}
			a.writer = nil
		}
		if a.durable != nil {
			if err := a.durable.Close(); err != nil {
				result = multierror.Append(result, err)
			}
			a.durable = nil
		}
		a.closeTransport()
		a.closeErr = result.ErrorOrNil()
	})
	return a.closeErr
}

func (a *App) closeTransport() {
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}
