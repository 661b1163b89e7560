package typeface

import "testing"

func TestCache_ReusesFaces(t *testing.T) {
	c := NewCache()
	defer c.Close()

	a, err := c.Face(12, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := c.Face(12, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Error("expected the same face for the same size and weight")
	}
	bold, err := c.Face(12, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bold == a {
		t.Error("expected a distinct bold face")
	}
}

func TestCache_RejectsBadSize(t *testing.T) {
	c := NewCache()
	defer c.Close()
	if _, err := c.Face(0, false); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestWidth_GrowsWithTextAndSize(t *testing.T) {
	c := NewCache()
	defer c.Close()
	small, _ := c.Face(10, false)
	large, _ := c.Face(20, false)

	if Width(small, "hello") <= Width(small, "hi") {
		t.Error("expected longer text to be wider")
	}
	if Width(large, "hello") <= Width(small, "hello") {
		t.Error("expected larger size to be wider")
	}
	if Width(small, "") != 0 {
		t.Error("expected empty string to have zero width")
	}
	if Ascent(large) <= 0 {
		t.Error("expected positive ascent")
	}
}

func TestFixedConversion(t *testing.T) {
	if got := ToFloat(ToFixed(12.5)); got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
}
