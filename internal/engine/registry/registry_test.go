package registry

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	r := New("  https://cdn.example.com/ ", "@typings")
	if r.BaseURL != "https://cdn.example.com" {
		t.Fatalf("unexpected base %q", r.BaseURL)
	}
	if r.TypeScope != "@typings/" {
		t.Fatalf("unexpected scope %q", r.TypeScope)
	}

	d := New("", "")
	if d.BaseURL != DefaultBaseURL || d.TypeScope != DefaultTypeScope {
		t.Fatalf("unexpected defaults %+v", d)
	}
}

func TestURLBuilders(t *testing.T) {
	r := Default()
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"package", r.PackageURL("react", "18.2.0"), "https://esm.sh/react@18.2.0"},
		{"manifest", r.ManifestURL("react", "18.2.0"), "https://esm.sh/react@18.2.0/package.json"},
		{"subpath", r.SubpathURL("react", "18.2.0", "./jsx-runtime"), "https://esm.sh/react@18.2.0/jsx-runtime"},
		{"empty subpath", r.SubpathURL("react", "18.2.0", "./"), "https://esm.sh/react@18.2.0"},
		{"scoped", r.PackageURL("@hookform/resolvers", "3.3.0"), "https://esm.sh/@hookform/resolvers@3.3.0"},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s: got %q, expected %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestStripTypeScope(t *testing.T) {
	r := Default()
	if got := r.StripTypeScope("@types/react"); got != "react" {
		t.Fatalf("expected react, got %q", got)
	}
	if got := r.StripTypeScope("@hookform/resolvers"); got != "@hookform/resolvers" {
		t.Fatalf("expected scoped package untouched, got %q", got)
	}
}
