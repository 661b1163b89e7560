// Package typeface provides the Go fonts at arbitrary pixel sizes for text
// measurement and drawing.
package typeface

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	parseOnce sync.Once
	regular   *opentype.Font
	bold      *opentype.Font
	parseErr  error
)

func load() error {
	parseOnce.Do(func() {
		regular, parseErr = opentype.Parse(goregular.TTF)
		if parseErr != nil {
			parseErr = fmt.Errorf("parse regular font: %w", parseErr)
			return
		}
		bold, parseErr = opentype.Parse(gobold.TTF)
		if parseErr != nil {
			parseErr = fmt.Errorf("parse bold font: %w", parseErr)
		}
	})
	return parseErr
}

type faceKey struct {
	size float64
	bold bool
}

// Cache hands out faces by size and weight. Faces are not safe for concurrent
// use, so each goroutine needs its own Cache.
type Cache struct {
	faces map[faceKey]font.Face
}

func NewCache() *Cache {
	return &Cache{faces: make(map[faceKey]font.Face)}
}

// Face returns a face whose em size is size pixels.
func (c *Cache) Face(size float64, isBold bool) (font.Face, error) {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("invalid font size %v", size)
	}
	key := faceKey{size: size, bold: isBold}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	if err := load(); err != nil {
		return nil, err
	}
	src := regular
	if isBold {
		src = bold
	}
	// DPI 72 makes one point one pixel.
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	c.faces[key] = f
	return f, nil
}

// Close releases every face handed out by c.
func (c *Cache) Close() {
	for k, f := range c.faces {
		f.Close()
		delete(c.faces, k)
	}
}

// Width returns the advance of s in pixels.
func Width(f font.Face, s string) float64 {
	return ToFloat(font.MeasureString(f, s))
}

// Ascent returns the face ascent in pixels.
func Ascent(f font.Face) float64 {
	return ToFloat(f.Metrics().Ascent)
}

// ToFloat converts a 26.6 fixed point value to pixels.
func ToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// ToFixed converts pixels to 26.6 fixed point.
func ToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

// Baseline returns the baseline y for text centred vertically in a line box
// starting at top with the given height.
func Baseline(f font.Face, top, height float64) float64 {
	m := f.Metrics()
	asc, desc := ToFloat(m.Ascent), ToFloat(m.Descent)
	return top + (height-(asc+desc))/2 + asc
}
