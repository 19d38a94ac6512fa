package expander

import (
	"encoding/json"
	"strings"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/shared/util"
)

// manifest is the subset of package.json that drives expansion.
type manifest struct {
	Types   string
	Exports map[string]exportEntry
}

type exportEntry struct {
	Types string
}

type rawManifest struct {
	Types   json.RawMessage `json:"types"`
	Typings json.RawMessage `json:"typings"`
	Exports json.RawMessage `json:"exports"`
}

// parseManifest decodes text leniently: fields of an unexpected shape are
// ignored. Malformed JSON yields an empty manifest and a CodeParse error;
// empty text is an absent manifest, not an error.
func parseManifest(text string) (manifest, error) {
	var m manifest
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	var raw rawManifest
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return m, errors.Wrap(err, errors.CodeParse, "malformed manifest")
	}

	m.Types = jsonString(raw.Types)
	if m.Types == "" {
		m.Types = jsonString(raw.Typings)
	}

	var exports map[string]json.RawMessage
	if err := json.Unmarshal(raw.Exports, &exports); err != nil {
		return m, nil
	}
	if !hasSubpathKeys(exports) {
		// conditions-only sugar ({"types": ..., "import": ...}) describes the root
		return m, nil
	}
	m.Exports = make(map[string]exportEntry, len(exports))
	for key, value := range exports {
		var entry exportEntry
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(value, &fields); err == nil {
			entry.Types = jsonString(fields["types"])
		}
		m.Exports[key] = entry
	}
	return m, nil
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func hasSubpathKeys(exports map[string]json.RawMessage) bool {
	for key := range exports {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

// subpath is one export key that gets its own crawl.
type subpath struct {
	Key   string
	Path  string
	Types string
}

// subpaths returns the crawlable export keys in key order. The root key,
// wildcard keys and the manifest's own entry are skipped, as are keys whose
// path matches skip.
func (m manifest) subpaths(skip func(path string) bool) []subpath {
	keys := util.SortedStringKeys(m.Exports)
	out := make([]subpath, 0, len(keys))
	for _, key := range keys {
		if key == "." || strings.Contains(key, "*") || key == "./package.json" {
			continue
		}
		path := strings.TrimPrefix(key, "./")
		if path == "" || (skip != nil && skip(path)) {
			continue
		}
		out = append(out, subpath{Key: key, Path: path, Types: m.Exports[key].Types})
	}
	return out
}
