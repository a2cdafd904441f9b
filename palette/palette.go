// Package palette assigns a stable color to every class index. The palette
// is an explicit object rather than package state so tests can reset it and
// concurrent passes can share one instance safely.
package palette

import (
	"fmt"
	"image/color"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// defaultHexPalette is the ordered base palette, cycled by class index.
var defaultHexPalette = []string{
	"#FF3838", "#FF9D97", "#FF701F", "#FFB21D", "#CFD231", "#48F90A",
	"#92CC17", "#3DDB86", "#1A9334", "#00D4BB", "#2C99A8", "#00C2FF",
	"#344593", "#6473FF", "#0018EC", "#8438FF", "#520085", "#CB38FF",
	"#FF95C8", "#FF37C7",
}

// Palette memoizes per-class colors. Safe for concurrent use.
type Palette struct {
	mu     sync.RWMutex
	colors []colorful.Color
	memo   map[int]color.RGBA
}

// New builds a palette from the default color list.
func New() *Palette {
	p, err := NewFromHex(defaultHexPalette)
	if err != nil {
		// The default list is static and valid.
		panic(err)
	}
	return p
}

// NewFromHex builds a palette from an ordered list of hex colors.
func NewFromHex(hexes []string) (*Palette, error) {
	if len(hexes) == 0 {
		return nil, fmt.Errorf("palette needs at least one color")
	}
	colors := make([]colorful.Color, 0, len(hexes))
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("invalid palette color %q: %w", h, err)
		}
		colors = append(colors, c)
	}
	return &Palette{
		colors: colors,
		memo:   make(map[int]color.RGBA),
	}, nil
}

// Get returns the color for a class index. The same index always yields the
// same color within a process lifetime.
func (p *Palette) Get(index int) color.RGBA {
	if index < 0 {
		index = 0
	}

	p.mu.RLock()
	if c, ok := p.memo[index]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	base := p.colors[index%len(p.colors)]
	r, g, b := base.RGB255()
	c := color.RGBA{R: r, G: g, B: b, A: 255}

	p.mu.Lock()
	p.memo[index] = c
	p.mu.Unlock()
	return c
}

// WithAlpha returns the class color tinted with the given alpha, used when
// painting that class's segmentation mask.
func (p *Palette) WithAlpha(index int, alpha uint8) color.RGBA {
	c := p.Get(index)
	c.A = alpha
	return c
}

// HexToRGBA expands a hex color plus an 8-bit alpha into the 4-component
// form mask painting expects.
func HexToRGBA(hex string, alpha uint8) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}
