package palette

import (
	"image/color"
	"sync"
	"testing"
)

func TestGetDeterministic(t *testing.T) {
	p := New()

	for i := 0; i < 100; i++ {
		first := p.Get(i)
		for rep := 0; rep < 5; rep++ {
			if got := p.Get(i); got != first {
				t.Fatalf("Get(%d) changed between calls: %v then %v", i, first, got)
			}
		}
	}
}

func TestGetCyclesBaseList(t *testing.T) {
	p := New()

	n := len(defaultHexPalette)
	if got, want := p.Get(0), p.Get(n); got != want {
		t.Errorf("Get(0) = %v and Get(%d) = %v should match modulo the palette length", got, n, want)
	}
	if p.Get(0) == p.Get(1) {
		t.Errorf("adjacent classes share a color")
	}
}

func TestGetOpaque(t *testing.T) {
	p := New()
	if c := p.Get(3); c.A != 255 {
		t.Errorf("Get returned alpha %d, want 255", c.A)
	}
}

func TestWithAlpha(t *testing.T) {
	p := New()
	c := p.WithAlpha(2, 120)
	base := p.Get(2)
	if c.R != base.R || c.G != base.G || c.B != base.B {
		t.Errorf("WithAlpha changed the RGB channels: %v vs %v", c, base)
	}
	if c.A != 120 {
		t.Errorf("WithAlpha alpha = %d, want 120", c.A)
	}
}

func TestGetConcurrent(t *testing.T) {
	p := New()

	var wg sync.WaitGroup
	results := make([]color.RGBA, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Get(7)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent Get(7) disagreed: %v vs %v", results[i], results[0])
		}
	}
}

func TestNewFromHexRejectsBadInput(t *testing.T) {
	if _, err := NewFromHex(nil); err == nil {
		t.Error("NewFromHex(nil) should fail")
	}
	if _, err := NewFromHex([]string{"not-a-color"}); err == nil {
		t.Error("NewFromHex with a bad color should fail")
	}
}

func TestHexToRGBA(t *testing.T) {
	c, err := HexToRGBA("#FF0080", 120)
	if err != nil {
		t.Fatalf("HexToRGBA failed: %v", err)
	}
	want := color.RGBA{R: 255, G: 0, B: 128, A: 120}
	if c != want {
		t.Errorf("HexToRGBA = %v, want %v", c, want)
	}

	if _, err := HexToRGBA("nope", 255); err == nil {
		t.Error("HexToRGBA with invalid input should fail")
	}
}
