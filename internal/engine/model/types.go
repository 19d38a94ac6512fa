package model

import (
	"sort"
	"strings"
	"sync"
)

// DefaultVersion is used when a package is requested without a version.
const DefaultVersion = "latest"

// DependencyMap maps a canonical module key to rewritten declaration content.
type DependencyMap map[string]string

// Merge copies every entry of other into m. Entries of other win on collision.
func (m DependencyMap) Merge(other DependencyMap) {
	for k, v := range other {
		m[k] = v
	}
}

// Keys returns the map keys in sorted order.
func (m DependencyMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of m.
func (m DependencyMap) Clone() DependencyMap {
	out := make(DependencyMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PackageRef names one package to resolve.
type PackageRef struct {
	Name    string
	Version string
}

func (p PackageRef) String() string {
	return p.Name + "@" + p.EffectiveVersion()
}

// EffectiveVersion returns the version or "latest" when it is blank.
func (p PackageRef) EffectiveVersion() string {
	v := strings.TrimSpace(p.Version)
	if v == "" {
		return DefaultVersion
	}
	return v
}

// ParsePackageRef splits "name@version" while keeping scoped names intact.
func ParsePackageRef(raw string) PackageRef {
	raw = strings.TrimSpace(raw)
	at := strings.LastIndex(raw, "@")
	if at <= 0 {
		return PackageRef{Name: raw, Version: DefaultVersion}
	}
	ref := PackageRef{Name: raw[:at], Version: raw[at+1:]}
	if ref.Version == "" {
		ref.Version = DefaultVersion
	}
	return ref
}

// SortedRefs turns a name->version mapping into refs ordered by name.
func SortedRefs(packages map[string]string) []PackageRef {
	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Strings(names)
	refs := make([]PackageRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, PackageRef{Name: name, Version: packages[name]})
	}
	return refs
}

// ReferenceKind is the syntactic idiom an edge was discovered through.
type ReferenceKind string

const (
	KindImport    ReferenceKind = "import"
	KindExport    ReferenceKind = "export"
	KindReference ReferenceKind = "reference"
	KindRequire   ReferenceKind = "require"
)

// PathKind tells whether an edge target was written as a registry URL or a relative path.
type PathKind string

const (
	PathAbsolute PathKind = "absolute"
	PathRelative PathKind = "relative"
)

// Edge is a directed reference from one declaration file to another.
type Edge struct {
	Kind   ReferenceKind
	Path   PathKind
	Target string
}

// Tolerant reports whether a failure below this edge is discarded instead of
// aborting the parent file. Only absolute import, export and reference edges
// are load-bearing.
func (e Edge) Tolerant() bool {
	return e.Path == PathRelative || e.Kind == KindRequire
}

// VisitedScope selects how long a VisitedSet lives.
type VisitedScope string

const (
	// ScopeRequest shares one set across every crawl of a top-level call.
	ScopeRequest VisitedScope = "request"
	// ScopeCrawl creates a fresh set for each root or sub-path crawl.
	ScopeCrawl VisitedScope = "crawl"
)

// VisitedSet records URLs already scheduled for a fetch. Safe for concurrent use.
//
// A set made by Child is layered over its parent: membership checks see both,
// new marks stay local until Commit.
type VisitedSet struct {
	mu        sync.Mutex
	urls      map[string]struct{}
	parent    *VisitedSet
	inherited bool
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// Child returns an empty set layered over s.
func (s *VisitedSet) Child() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{}), parent: s}
}

// Add marks url as visited and reports whether it was new.
func (s *VisitedSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	if s.parent != nil && s.parent.Has(url) {
		s.inherited = true
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

func (s *VisitedSet) Has(url string) bool {
	s.mu.Lock()
	_, ok := s.urls[url]
	parent := s.parent
	s.mu.Unlock()
	if ok {
		return true
	}
	return parent != nil && parent.Has(url)
}

// Len counts the URLs marked in s itself, not those of its parent.
func (s *VisitedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Inherited reports whether Add turned a URL away because the parent already
// held it. A map crawled under such a set lacks files another crawl owns.
func (s *VisitedSet) Inherited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inherited
}

// Commit copies the marks of s into its parent. A set without a parent is
// left as is.
func (s *VisitedSet) Commit() {
	s.mu.Lock()
	urls := make([]string, 0, len(s.urls))
	for u := range s.urls {
		urls = append(urls, u)
	}
	parent := s.parent
	s.mu.Unlock()
	if parent == nil {
		return
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for _, u := range urls {
		parent.urls[u] = struct{}{}
	}
}

// Valid reports whether s is a known scope.
func (s VisitedScope) Valid() bool {
	return s == ScopeRequest || s == ScopeCrawl
}
