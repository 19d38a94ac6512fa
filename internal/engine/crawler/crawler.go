// Package crawler builds the transitive closure of declaration files reachable
// from an entry URL.
package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/modkey"
	"dtsresolve/internal/engine/registry"
	"dtsresolve/internal/engine/rewriter"
	"dtsresolve/internal/shared/observability"
)

// Fetcher returns the text of a declaration file. An empty string with a nil
// error means the file has no content.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type Crawler struct {
	fetcher  Fetcher
	rewriter *rewriter.Rewriter
	keys     *modkey.Deriver
	edges    *EdgeExtractor
	skip     []glob.Glob
	logger   *slog.Logger
}

type Option func(*Crawler)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSkipPatterns excludes edge targets whose URL matches any pattern.
func WithSkipPatterns(patterns []glob.Glob) Option {
	return func(c *Crawler) {
		c.skip = patterns
	}
}

func New(fetcher Fetcher, reg registry.Registry, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  fetcher,
		rewriter: rewriter.New(reg),
		keys:     modkey.NewDeriver(reg),
		edges:    NewEdgeExtractor(reg),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// frame is one file whose outgoing edges are being walked.
type frame struct {
	url   string
	via   model.Edge
	edges []model.Edge
	next  int
}

// Crawl visits every declaration file reachable from entryURL and returns the
// accumulated key -> rewritten content map. visited is shared with the caller
// and may be reused across crawls; nil means a fresh set.
//
// A failure below an absolute import, export or reference edge aborts the
// rest of the parent file and propagates upwards; failures below relative or
// require edges are discarded. When a failure reaches the entry file the
// partial map is returned together with the error.
func (c *Crawler) Crawl(ctx context.Context, entryURL string, visited *model.VisitedSet) (model.DependencyMap, error) {
	ctx, span := observability.Tracer.Start(ctx, "crawler.Crawl",
		trace.WithAttributes(attribute.String("url", entryURL)))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.CrawlDuration.Observe(time.Since(started).Seconds())
	}()

	deps := make(model.DependencyMap)
	if entryURL == "" {
		return deps, nil
	}
	if visited == nil {
		visited = model.NewVisitedSet()
	}
	visited.Add(entryURL)

	root, err := c.visit(ctx, entryURL, deps)
	if err != nil {
		span.RecordError(err)
		return deps, err
	}
	if root == nil {
		return deps, nil
	}

	stack := []*frame{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return deps, errors.Wrap(err, errors.CodeCanceled, "crawl canceled")
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.edges) {
			stack = stack[:len(stack)-1]
			continue
		}
		edge := top.edges[top.next]
		top.next++

		if c.skipped(edge.Target) || !visited.Add(edge.Target) {
			continue
		}

		child, err := c.visit(ctx, edge.Target, deps)
		if err != nil {
			stack, err = c.unwind(stack, edge, err)
			if err != nil {
				span.RecordError(err)
				return deps, err
			}
			continue
		}
		if child != nil {
			child.via = edge
			stack = append(stack, child)
		}
	}

	span.SetAttributes(attribute.Int("files", len(deps)))
	return deps, nil
}

// visit fetches one file, records its rewritten content and returns a frame
// for its outgoing edges, or nil when there is nothing to walk.
func (c *Crawler) visit(ctx context.Context, url string, deps model.DependencyMap) (*frame, error) {
	content, err := c.fetcher.FetchText(ctx, url)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxURL, url)
	}
	key := c.keys.Derive(url)
	if key == "" || content == "" {
		return nil, nil
	}

	deps[key] = c.rewriter.Rewrite(content)
	observability.CrawlFilesTotal.Inc()

	edges := c.edges.Extract(url, content)
	if len(edges) == 0 {
		return nil, nil
	}
	return &frame{url: url, edges: edges}, nil
}

// unwind applies the failure policy after failed could not be processed from
// the frame on top of stack. It returns the remaining stack, or the error when
// the failure reached the entry file.
func (c *Crawler) unwind(stack []*frame, failed model.Edge, err error) ([]*frame, error) {
	for {
		if failed.Tolerant() {
			observability.EdgeFailuresTotal.WithLabelValues("tolerated").Inc()
			c.logger.Debug("ignoring failed best-effort reference",
				"target", failed.Target, "kind", failed.Kind, "path", failed.Path, "error", err)
			return stack, nil
		}
		observability.EdgeFailuresTotal.WithLabelValues("aborted").Inc()

		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.logger.Debug("aborting file after failed reference",
			"file", parent.url, "target", failed.Target, "kind", failed.Kind, "error", err)
		if len(stack) == 0 {
			return nil, err
		}
		failed = parent.via
	}
}

func (c *Crawler) skipped(url string) bool {
	for _, g := range c.skip {
		if g.Match(url) {
			return true
		}
	}
	return false
}
