package modkey

import (
	"testing"

	"dtsresolve/internal/engine/registry"
)

func TestDeriver_Derive(t *testing.T) {
	d := NewDeriver(registry.Default())

	tests := []struct {
		url      string
		expected string
	}{
		{"https://esm.sh/v135/@types/react@18.2.0/index.d.ts", "react/index.d.ts"},
		{"https://esm.sh/v135/@types/react@18.2.0/global.d.ts", "react/global.d.ts"},
		{"https://esm.sh/v135/csstype@3.1.2/index.d.ts", "csstype/index.d.ts"},
		{"https://esm.sh/v135/@types/react@^18.0.0/index.d.ts", "react/index.d.ts"},
		{"https://esm.sh/v135/@types/react@~18.2/index.d.ts", "react/index.d.ts"},
		{"https://esm.sh/v135/react/index.d.ts", "react/index.d.ts"},
		{"https://esm.sh/v135/@hookform/resolvers@3.3.0/zod/dist/zod.d.ts", "@hookform/resolvers/zod/dist/zod.d.ts"},
		{"https://esm.sh/v135/zod@3.22.2/lib/index.d.ts", "zod/lib/index.d.ts"},
		{"https://esm.sh/v135/react-hook-form@7.45.4/dist/index.d.ts", "react-hook-form/dist/index.d.ts"},
		// no sub-path / not a declaration file
		{"https://esm.sh/react@18.2.0", ""},
		{"https://esm.sh/v135/react@18.2.0/index.js", ""},
		{"https://other.example.com/v135/react@18.2.0/index.d.ts", ""},
		{"", ""},
		{"::not a url::", ""},
	}

	for _, tt := range tests {
		got := d.Derive(tt.url)
		if got != tt.expected {
			t.Errorf("Derive(%q) = %q, expected %q", tt.url, got, tt.expected)
		}
	}
}

func TestDeriver_Deterministic(t *testing.T) {
	d := NewDeriver(registry.Default())
	url := "https://esm.sh/v135/@types/react-dom@18.2.7/client.d.ts"
	first := d.Derive(url)
	for i := 0; i < 10; i++ {
		if got := d.Derive(url); got != first {
			t.Fatalf("iteration %d: got %q, expected %q", i, got, first)
		}
	}
	if first != "react-dom/client.d.ts" {
		t.Fatalf("unexpected key %q", first)
	}
}

func TestDeriver_VersionAndScopeOnlyAffectTheirComponent(t *testing.T) {
	d := NewDeriver(registry.Default())
	a := d.Derive("https://esm.sh/v135/@types/left-pad@1.3.0/index.d.ts")
	b := d.Derive("https://esm.sh/v135/left-pad@1.1.0/index.d.ts")
	c := d.Derive("https://esm.sh/v135/left-pad/index.d.ts")
	if a != "left-pad/index.d.ts" || a != b || b != c {
		t.Fatalf("expected identical keys, got %q %q %q", a, b, c)
	}
}

func TestDeriver_CustomRegistry(t *testing.T) {
	d := NewDeriver(registry.New("https://registry", "@types/"))
	if got := d.Derive("https://registry/v135/@types/left-pad@1.3.0/index.d.ts"); got != "left-pad/index.d.ts" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := d.Derive("https://esm.sh/v135/@types/left-pad@1.3.0/index.d.ts"); got != "" {
		t.Fatalf("expected foreign registry url to yield empty key, got %q", got)
	}
}
