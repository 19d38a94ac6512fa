package crawler

import (
	"net/url"
	"regexp"

	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/engine/registry"
)

// edgeClass is one pattern that yields edges of a single kind.
type edgeClass struct {
	kind    model.ReferenceKind
	path    model.PathKind
	pattern *regexp.Regexp
}

// EdgeExtractor detects outgoing references in raw declaration content.
type EdgeExtractor struct {
	classes []edgeClass
}

// NewEdgeExtractor compiles the detection patterns. Class order matters: the
// load-bearing absolute classes are processed before the best-effort ones.
func NewEdgeExtractor(reg registry.Registry) *EdgeExtractor {
	abs := reg.QuotedBase() + `/v\d+/`
	return &EdgeExtractor{classes: []edgeClass{
		{model.KindImport, model.PathAbsolute, regexp.MustCompile(`import [\s\S]*? from '(` + abs + `[^']+)';`)},
		{model.KindExport, model.PathAbsolute, regexp.MustCompile(`export [\s\S]*? from '(` + abs + `[^']+)';`)},
		{model.KindReference, model.PathAbsolute, regexp.MustCompile(`/// <reference types="(` + abs + `[^"]+)" />`)},
		{model.KindImport, model.PathRelative, regexp.MustCompile(`import [\s\S]*? from '(\.\.?/[^']+)';`)},
		{model.KindExport, model.PathRelative, regexp.MustCompile(`export [\s\S]*? from ['"](\.\.?/[^'"]+)['"];`)},
		{model.KindReference, model.PathRelative, regexp.MustCompile(`/// <reference path="([^"]+)" />`)},
		{model.KindRequire, model.PathAbsolute, regexp.MustCompile(`require\(['"](` + abs + `[^'"]+)['"]\)`)},
	}}
}

// Extract returns the edges of content in processing order. Relative targets
// are resolved against sourceURL; ones that cannot be resolved are dropped.
func (x *EdgeExtractor) Extract(sourceURL, content string) []model.Edge {
	if content == "" {
		return nil
	}
	base, baseErr := url.Parse(sourceURL)
	edges := make([]model.Edge, 0)
	for _, class := range x.classes {
		for _, m := range class.pattern.FindAllStringSubmatch(content, -1) {
			target := m[1]
			if target == "" {
				continue
			}
			if class.path == model.PathRelative {
				if baseErr != nil {
					break
				}
				resolved, ok := resolveAgainst(base, target)
				if !ok {
					continue
				}
				target = resolved
			}
			edges = append(edges, model.Edge{Kind: class.kind, Path: class.path, Target: target})
		}
	}
	return edges
}

func resolveAgainst(base *url.URL, ref string) (string, bool) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(parsed).String(), true
}
