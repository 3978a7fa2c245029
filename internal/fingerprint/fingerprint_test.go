package fingerprint

import (
	"strings"
	"testing"
)

func TestCompute_KeyOrderIndependent(t *testing.T) {
	t.Parallel()

	a, err := Compute("search", map[string]any{"query": "weather", "limit": 3, "opts": map[string]any{"x": 1, "y": 2}})
	if err != nil {
		t.Fatalf("Compute a: %v", err)
	}
	b, err := Compute("search", map[string]any{"opts": map[string]any{"y": 2, "x": 1}, "limit": 3, "query": "weather"})
	if err != nil {
		t.Fatalf("Compute b: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal fingerprints, got %s vs %s", a, b)
	}
	if !strings.HasPrefix(string(a), "sha256:") {
		t.Fatalf("unexpected key format: %s", a)
	}
}

func TestCompute_DistinguishesToolAndArgs(t *testing.T) {
	t.Parallel()

	base, _ := Compute("search", map[string]any{"q": "a"})

	other, _ := Compute("lookup", map[string]any{"q": "a"})
	if base == other {
		t.Fatal("different tool names must produce different keys")
	}

	other, _ = Compute("search", map[string]any{"q": "b"})
	if base == other {
		t.Fatal("different arguments must produce different keys")
	}

	other, _ = Compute("search", nil)
	if base == other {
		t.Fatal("nil arguments must differ from non-nil")
	}
}

func TestCompute_NumberNormalization(t *testing.T) {
	t.Parallel()

	// int 3 and float64 3 marshal to the same JSON number.
	a, _ := Compute("t", map[string]any{"n": 3})
	b, _ := Compute("t", map[string]any{"n": float64(3)})
	if a != b {
		t.Fatalf("expected normalized numbers to match: %s vs %s", a, b)
	}
}

func TestSet_RegisterAndHas(t *testing.T) {
	t.Parallel()

	s := NewSet()
	k, _ := Compute("t", map[string]any{"a": 1})

	if s.Has(k) {
		t.Fatal("fresh set should not contain key")
	}
	if dup := s.Register(k); dup {
		t.Fatal("first register must not report duplicate")
	}
	if dup := s.Register(k); !dup {
		t.Fatal("second register must report duplicate")
	}
	if !s.Has(k) || s.Len() != 1 {
		t.Fatalf("unexpected set state: has=%v len=%d", s.Has(k), s.Len())
	}
}
