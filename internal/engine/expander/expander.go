// Package expander resolves one package: its root declaration entry plus one
// crawl per export sub-path, merged into a single map.
package expander

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/registry"
	"dtsresolve/internal/shared/observability"
	"dtsresolve/internal/shared/util"
)

const (
	defaultConcurrency = 4
	dependenciesPrefix = "dependencies:"
	declarationExt     = ".d.ts"
	indexDeclaration   = "index" + declarationExt
)

// Lookup is the gateway surface used for manifests and entry discovery.
type Lookup interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchDeclarationEntryURL(ctx context.Context, packageURL string) (string, error)
}

// Crawler walks one declaration entry point.
type Crawler interface {
	Crawl(ctx context.Context, entryURL string, visited *model.VisitedSet) (model.DependencyMap, error)
}

type Expander struct {
	lookup      Lookup
	crawler     Crawler
	reg         registry.Registry
	durable     ports.DurableCache
	scope       model.VisitedScope
	concurrency int
	skip        []glob.Glob
	logger      *slog.Logger
}

type Option func(*Expander)

// WithDurableCache enables the per-crawl dependencies cache.
func WithDurableCache(cache ports.DurableCache) Option {
	return func(e *Expander) {
		e.durable = cache
	}
}

func WithVisitedScope(scope model.VisitedScope) Option {
	return func(e *Expander) {
		if scope.Valid() {
			e.scope = scope
		}
	}
}

// WithConcurrency bounds the number of sub-path crawls in flight.
func WithConcurrency(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSubpathExclusions skips export sub-paths matching any pattern.
func WithSubpathExclusions(patterns []glob.Glob) Option {
	return func(e *Expander) {
		e.skip = patterns
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(lookup Lookup, crawler Crawler, reg registry.Registry, opts ...Option) *Expander {
	e := &Expander{
		lookup:      lookup,
		crawler:     crawler,
		reg:         reg,
		scope:       model.ScopeRequest,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolvePackage returns the merged map of ref's root entry, its export
// sub-paths and the synthetic re-export entries. A crawl that fails
// contributes nothing; the only error returned is context cancellation.
//
// Under the request scope each crawl marks a child of visited and commits it
// on success, so a failed crawl does not hide files from its siblings; nil
// allocates a set for this package. Under the crawl scope visited is ignored.
func (e *Expander) ResolvePackage(ctx context.Context, ref model.PackageRef, visited *model.VisitedSet) (model.DependencyMap, error) {
	name, version := ref.Name, ref.EffectiveVersion()
	ctx, span := observability.Tracer.Start(ctx, "expander.ResolvePackage",
		trace.WithAttributes(attribute.String("package", name), attribute.String("version", version)))
	defer span.End()

	if visited == nil {
		visited = model.NewVisitedSet()
	}
	logger := e.logger.With("package", name, "version", version)

	manifestText, err := e.lookup.FetchText(ctx, e.reg.ManifestURL(name, version))
	if err != nil {
		logger.Warn("manifest fetch failed, continuing without exports", "error", err)
	}
	m, err := parseManifest(manifestText)
	if err != nil {
		logger.Warn("manifest unreadable, continuing without exports", "error", errors.AddContext(err, errors.CtxPackage, name))
	}

	rootMap := e.crawlEntry(ctx, logger, name, version, e.reg.PackageURL(name, version), e.visitedFor(visited))

	subpaths := m.subpaths(e.skipped)
	subMaps := make([]model.DependencyMap, len(subpaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sp := range subpaths {
		i, sp := i, sp
		g.Go(func() error {
			library := name + "/" + sp.Path
			subMaps[i] = e.crawlEntry(gctx, logger, library, version, e.reg.SubpathURL(name, version, sp.Path), e.visitedFor(visited))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "package resolution canceled")
	}

	result := make(model.DependencyMap)
	result.Merge(rootMap)
	for _, sp := range subpaths {
		if sp.Types == "" {
			continue
		}
		result[name+"/"+sp.Path+"/"+indexDeclaration] = "export * from '" + name + "/" + manifestPath(sp.Types) + "'"
	}
	for _, sub := range subMaps {
		result.Merge(sub)
	}
	if types := util.TrimDotSlash(m.Types); types != "" && types != indexDeclaration {
		result[name+"/"+indexDeclaration] = "export * from './" + manifestPath(m.Types) + "'"
	}

	span.SetAttributes(attribute.Int("subpaths", len(subpaths)), attribute.Int("files", len(result)))
	return result, nil
}

// crawlEntry discovers the entry of one library (package or sub-path) and
// crawls it, going through the durable dependencies cache when enabled. Only
// complete maps are persisted: a crawl that skipped files another crawl had
// already visited is returned but not cached.
func (e *Expander) crawlEntry(ctx context.Context, logger *slog.Logger, library, version, discoveryURL string, visited *model.VisitedSet) model.DependencyMap {
	cacheKey := dependenciesPrefix + library + "@" + version
	if cached, ok := e.readDependencies(ctx, cacheKey); ok {
		return cached
	}

	entryURL, err := e.lookup.FetchDeclarationEntryURL(ctx, discoveryURL)
	if err != nil {
		logger.Debug("entry discovery failed", "library", library, "url", discoveryURL, "error", err)
		return nil
	}
	deps, err := e.crawler.Crawl(ctx, entryURL, visited)
	if err != nil {
		logger.Debug("crawl failed, dropping its contribution", "library", library, "url", entryURL, "error", err)
		return nil
	}
	visited.Commit()
	if visited.Inherited() {
		logger.Debug("crawl skipped files owned by another crawl, not caching", "library", library)
		return deps
	}
	e.writeDependencies(ctx, logger, cacheKey, deps)
	return deps
}

func (e *Expander) readDependencies(ctx context.Context, key string) (model.DependencyMap, bool) {
	if e.durable == nil {
		return nil, false
	}
	raw, ok, err := e.durable.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	var deps model.DependencyMap
	if err := json.Unmarshal([]byte(raw), &deps); err != nil || len(deps) == 0 {
		return nil, false
	}
	observability.CacheHitsTotal.WithLabelValues("dependencies").Inc()
	return deps, true
}

func (e *Expander) writeDependencies(ctx context.Context, logger *slog.Logger, key string, deps model.DependencyMap) {
	if e.durable == nil || len(deps) == 0 {
		return
	}
	raw, err := json.Marshal(deps)
	if err != nil {
		return
	}
	if err := e.durable.Put(ctx, key, string(raw)); err != nil {
		logger.Warn("dependencies cache write failed", "key", key, "error", err)
	}
}

// visitedFor returns the set one crawl marks. Under the request scope it is a
// child of shared, committed only when the crawl succeeds.
func (e *Expander) visitedFor(shared *model.VisitedSet) *model.VisitedSet {
	if e.scope == model.ScopeCrawl {
		return model.NewVisitedSet()
	}
	return shared.Child()
}

func (e *Expander) skipped(path string) bool {
	for _, g := range e.skip {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// manifestPath strips a leading "./" and the declaration extension.
func manifestPath(p string) string {
	return strings.TrimSuffix(util.TrimDotSlash(p), declarationExt)
}
