package pagination

import (
	"net/url"
	"testing"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]any{"query": "k", "page": 1})
	b := Fingerprint(map[string]any{"page": 1, "query": "k"})
	if a != b {
		t.Errorf("Fingerprint() differs by parameter order: %s vs %s", a, b)
	}

	c := Fingerprint(map[string]any{"kind": "comet", "query": "k"})
	d := Fingerprint(map[string]any{"query": "k", "kind": "comet"})
	if c != d {
		t.Errorf("Fingerprint() differs by map order: %s vs %s", c, d)
	}
}

func TestFingerprint_DetectsFilterChange(t *testing.T) {
	if Fingerprint(map[string]any{"query": "k"}) == Fingerprint(map[string]any{"query": "k2"}) {
		t.Error("Fingerprint() should change when a filter value changes")
	}
	if Fingerprint(map[string]any{"query": "k"}) == Fingerprint(map[string]any{"name": "k"}) {
		t.Error("Fingerprint() should change when a filter key changes")
	}
}

func TestFingerprint_IgnoresPaginationAndEmpty(t *testing.T) {
	base := Fingerprint(map[string]any{"query": "k"})

	tests := []struct {
		name    string
		filters map[string]any
	}{
		{
			name: "pagination params",
			filters: map[string]any{
				"query": "k", "page": 3, "limit": 50, "cursor": "abc",
				"sort": "name", "order": "desc", "pagination": "cursor",
			},
		},
		{
			name:    "empty string",
			filters: map[string]any{"query": "k", "kind": ""},
		},
		{
			name:    "nil value",
			filters: map[string]any{"query": "k", "kind": nil},
		},
		{
			name:    "empty slice",
			filters: map[string]any{"query": "k", "kind": []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.filters); got != base {
				t.Errorf("Fingerprint() = %s, want %s", got, base)
			}
		})
	}
}

func TestFingerprint_ScalarStringification(t *testing.T) {
	tests := []struct {
		name  string
		typed any
		text  string
	}{
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 2.5, "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typed := Fingerprint(map[string]any{"v": tt.typed})
			text := Fingerprint(map[string]any{"v": tt.text})
			if typed != text {
				t.Errorf("Fingerprint(%v) = %s, want same as %q (%s)", tt.typed, typed, tt.text, text)
			}
		})
	}
}

func TestFingerprint_Shape(t *testing.T) {
	fp := Fingerprint(map[string]any{"query": "ceres"})
	if len(fp) != FingerprintLength {
		t.Fatalf("len(Fingerprint()) = %d, want %d", len(fp), FingerprintLength)
	}
	if !isHexFingerprint(fp) {
		t.Errorf("Fingerprint() = %q, want lowercase hex", fp)
	}
	if Fingerprint(nil) != Fingerprint(map[string]any{}) {
		t.Error("nil and empty filters should fingerprint identically")
	}
}

func TestFiltersFromQuery(t *testing.T) {
	q := url.Values{
		"kind":   {"asteroid", "comet"},
		"cursor": {"abc"},
		"limit":  {"10"},
	}

	filters := FiltersFromQuery(q)
	if len(filters) != 1 {
		t.Fatalf("FiltersFromQuery() kept %d params, want 1: %v", len(filters), filters)
	}
	if filters["kind"] != "asteroid" {
		t.Errorf("kind = %v, want first value", filters["kind"])
	}
}
