// Package modkey derives canonical module keys from registry declaration URLs.
package modkey

import (
	"regexp"

	"dtsresolve/internal/engine/registry"
)

// Deriver extracts "<library><subpath>" from URLs shaped like
// <base>/v<n>/[<scope>]<library>[@<range>]/<subpath>.d.ts.
type Deriver struct {
	pattern *regexp.Regexp
}

func NewDeriver(reg registry.Registry) *Deriver {
	expr := reg.QuotedBase() +
		`/v\d+/(?:` + reg.QuotedScope() + `)?` +
		`([a-z0-9/@-]+)` +
		`(?:@[\^~]?[\d.]+)?` +
		`(/.*\.d\.ts)`
	return &Deriver{pattern: regexp.MustCompile(expr)}
}

// Derive returns the module key for url, or "" when url does not follow the
// registry convention.
func (d *Deriver) Derive(url string) string {
	m := d.pattern.FindStringSubmatch(url)
	if len(m) < 3 || m[1] == "" || m[2] == "" {
		return ""
	}
	return m[1] + m[2]
}
