package random

import (
	"strings"
	"testing"
)

func TestCodeUsesAlphabet(t *testing.T) {
	code := Code(8)
	if len(code) != 8 {
		t.Fatalf("expected length 8, got %d", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(letters, r) {
			t.Fatalf("unexpected rune %q in %s", r, code)
		}
	}
	if Code(0) != "" {
		t.Fatalf("expected empty code for zero length")
	}
}

func TestSeedNonNegative(t *testing.T) {
	for i := 0; i < 100; i++ {
		if s := Seed(); s < 0 {
			t.Fatalf("negative seed %d", s)
		}
	}
}
