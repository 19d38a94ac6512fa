// Package rewriter normalizes module specifiers inside declaration files so
// that registry URLs become canonical, locally addressable module paths.
package rewriter

import (
	"regexp"
	"strings"

	"dtsresolve/internal/engine/registry"
)

const (
	declarationExt = ".d.ts"
	indexFile      = "index" + declarationExt
)

// Rewriter rewrites the five reference idioms found in declaration text.
// A Rewriter is immutable and safe for concurrent use.
type Rewriter struct {
	reg registry.Registry

	registryImport    *regexp.Regexp
	registryExport    *regexp.Regexp
	anyExport         *regexp.Regexp
	anyImport         *regexp.Regexp
	registryReference *regexp.Regexp
	registryRequire   *regexp.Regexp
}

func New(reg registry.Registry) *Rewriter {
	base := reg.QuotedBase()
	// <lib> is everything up to the first "@<digit>", <rest> the version and path.
	registrySpecifier := `['"]` + base + `/v\d+/([^'"\n]*?)(@\d[^'"\n]*)['"]`
	return &Rewriter{
		reg:               reg,
		registryImport:    regexp.MustCompile(`import\s+([\s\S]*?)\s+from\s+` + registrySpecifier + `;?`),
		registryExport:    regexp.MustCompile(`export\s+([\s\S]*?)\s+from\s+` + registrySpecifier + `;?`),
		anyExport:         regexp.MustCompile(`export\s+([\s\S]*?)\s+from\s+['"](.*?)['"]`),
		anyImport:         regexp.MustCompile(`import\s+([\s\S]*?)\s+from\s+['"](.*?)['"]`),
		registryReference: regexp.MustCompile(`///\s+<reference\s+(path|types)="` + base + `/v\d+/([^"\n]*?)(@\d[^"\n]*)"\s+/>`),
		registryRequire:   regexp.MustCompile(`require\(['"]` + base + `/v\d+/([^'"\n]*?)(@\d[^'"\n]*)['"]\)`),
	}
}

// Rewrite returns content with every recognized specifier normalized.
// Rewrite(Rewrite(x)) == Rewrite(x).
func (r *Rewriter) Rewrite(content string) string {
	if content == "" {
		return ""
	}
	out := replaceSubmatches(r.registryImport, content, func(g []string) string {
		return "import " + g[1] + " from '" + r.moduleSpecifier(g[2], g[3]) + "'"
	})
	out = replaceSubmatches(r.registryExport, out, func(g []string) string {
		return "export " + g[1] + " from '" + r.moduleSpecifier(g[2], g[3]) + "'"
	})
	out = replaceSubmatches(r.anyExport, out, func(g []string) string {
		return "export " + g[1] + " from '" + stripDeclarationExt(g[2]) + "'"
	})
	out = replaceSubmatches(r.anyImport, out, func(g []string) string {
		return "import " + g[1] + " from '" + stripDeclarationExt(g[2]) + "'"
	})
	out = replaceSubmatches(r.registryReference, out, func(g []string) string {
		// path= names a file and keeps its extension; types= names a module
		// and follows the import rule.
		target := r.moduleSpecifier(g[2], g[3])
		if g[1] == "path" {
			target = r.reg.StripTypeScope(g[2])
			if file := lastSegment(g[3]); file != "" {
				target += "/" + file
			}
		}
		return `/// <reference ` + g[1] + `="` + target + `" />`
	})
	out = replaceSubmatches(r.registryRequire, out, func(g []string) string {
		return "require('" + r.moduleSpecifier(g[1], g[2]) + "')"
	})
	return out
}

// moduleSpecifier builds "<lib>" or "<lib>/<file>" from the library and the
// "@version/.../file.d.ts" remainder of a registry URL.
func (r *Rewriter) moduleSpecifier(library, rest string) string {
	lib := r.reg.StripTypeScope(library)
	file := lastSegment(rest)
	if file == "" || strings.Contains(file, indexFile) {
		return lib
	}
	return lib + "/" + stripDeclarationExt(file)
}

// lastSegment returns the final path segment after the version, or "" when
// the URL stops at the version.
func lastSegment(rest string) string {
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		return ""
	}
	return rest[i+1:]
}

func stripDeclarationExt(specifier string) string {
	for strings.HasSuffix(specifier, declarationExt) {
		specifier = strings.TrimSuffix(specifier, declarationExt)
	}
	return specifier
}

// replaceSubmatches is ReplaceAllStringFunc with access to capture groups.
func replaceSubmatches(re *regexp.Regexp, s string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range matches {
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(fn(groups))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
