// Package registry describes the URL conventions of an esm.sh-style CDN.
package registry

import (
	"regexp"
	"strings"
)

const (
	DefaultBaseURL     = "https://esm.sh"
	DefaultTypesHeader = "X-TypeScript-Types"
	DefaultTypeScope   = "@types/"
)

// Registry holds the base URL and type-package scope used to build and
// recognize registry URLs.
type Registry struct {
	BaseURL   string
	TypeScope string
}

// New normalizes base and scope, falling back to esm.sh defaults.
func New(baseURL, typeScope string) Registry {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	typeScope = strings.TrimSpace(typeScope)
	if typeScope == "" {
		typeScope = DefaultTypeScope
	}
	if !strings.HasSuffix(typeScope, "/") {
		typeScope += "/"
	}
	return Registry{BaseURL: baseURL, TypeScope: typeScope}
}

// Default returns the esm.sh registry.
func Default() Registry {
	return New(DefaultBaseURL, DefaultTypeScope)
}

// PackageURL is the type-entry discovery URL for a package root.
func (r Registry) PackageURL(name, version string) string {
	return r.BaseURL + "/" + name + "@" + version
}

// SubpathURL is the type-entry discovery URL for one export sub-path.
func (r Registry) SubpathURL(name, version, subpath string) string {
	subpath = strings.TrimPrefix(subpath, "./")
	subpath = strings.TrimPrefix(subpath, "/")
	if subpath == "" {
		return r.PackageURL(name, version)
	}
	return r.PackageURL(name, version) + "/" + subpath
}

// ManifestURL is the package.json URL for a package.
func (r Registry) ManifestURL(name, version string) string {
	return r.PackageURL(name, version) + "/package.json"
}

// QuotedBase returns the base URL escaped for use inside a regular expression.
func (r Registry) QuotedBase() string {
	return regexp.QuoteMeta(r.BaseURL)
}

// QuotedScope returns the type scope escaped for use inside a regular expression.
func (r Registry) QuotedScope() string {
	return regexp.QuoteMeta(r.TypeScope)
}

// StripTypeScope removes the type-package scope from a library name so the
// canonical form addresses the runtime package.
func (r Registry) StripTypeScope(library string) string {
	return strings.Replace(library, r.TypeScope, "", 1)
}
