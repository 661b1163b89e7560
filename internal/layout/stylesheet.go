package layout

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Stylesheet carries the presentation values the layout engine honors.
// Zero fields inherit from earlier sheets in a cascade.
type Stylesheet struct {
	PageWidth    float64 `json:"page_width,omitempty"`
	PageHeight   float64 `json:"page_height,omitempty"`
	Margin       float64 `json:"margin,omitempty"`
	FontSize     float64 `json:"font_size,omitempty"`
	LineHeight   float64 `json:"line_height,omitempty"` // multiple of the font size
	BlockSpacing float64 `json:"block_spacing,omitempty"`
	TextColor    string  `json:"text_color,omitempty"`
	LinkColor    string  `json:"link_color,omitempty"`
	Background   string  `json:"background,omitempty"`
}

// DefaultStylesheet returns A4 at 96dpi with a 12px base font.
func DefaultStylesheet() Stylesheet {
	return Stylesheet{
		PageWidth:    794,
		PageHeight:   1123,
		Margin:       48,
		FontSize:     12,
		LineHeight:   1.4,
		BlockSpacing: 8,
		TextColor:    "#222222",
		LinkColor:    "#1a0dab",
		Background:   "#ffffff",
	}
}

// Cascade merges sheets over the defaults; later non-zero values win.
func Cascade(sheets ...Stylesheet) Stylesheet {
	out := DefaultStylesheet()
	for _, s := range sheets {
		if s.PageWidth != 0 {
			out.PageWidth = s.PageWidth
		}
		if s.PageHeight != 0 {
			out.PageHeight = s.PageHeight
		}
		if s.Margin != 0 {
			out.Margin = s.Margin
		}
		if s.FontSize != 0 {
			out.FontSize = s.FontSize
		}
		if s.LineHeight != 0 {
			out.LineHeight = s.LineHeight
		}
		if s.BlockSpacing != 0 {
			out.BlockSpacing = s.BlockSpacing
		}
		if s.TextColor != "" {
			out.TextColor = s.TextColor
		}
		if s.LinkColor != "" {
			out.LinkColor = s.LinkColor
		}
		if s.Background != "" {
			out.Background = s.Background
		}
	}
	return out
}

// Validate rejects sheets that cannot be laid out.
func (s Stylesheet) Validate() error {
	if s.PageWidth <= 0 || s.PageHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %vx%v", s.PageWidth, s.PageHeight)
	}
	if s.Margin < 0 {
		return fmt.Errorf("margin must not be negative, got %v", s.Margin)
	}
	if 2*s.Margin >= s.PageWidth || 2*s.Margin >= s.PageHeight {
		return fmt.Errorf("margin %v leaves no content area", s.Margin)
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %v", s.FontSize)
	}
	if s.LineHeight <= 0 {
		return fmt.Errorf("line height must be positive, got %v", s.LineHeight)
	}
	if s.FontSize*s.LineHeight*2 > s.PageHeight-2*s.Margin {
		return fmt.Errorf("font size %v is too large for the page", s.FontSize)
	}
	for _, c := range []string{s.TextColor, s.LinkColor, s.Background} {
		if _, err := ParseColor(c); err != nil {
			return err
		}
	}
	return nil
}

// Hash returns a stable key for the sheet, used to cache renders.
func (s Stylesheet) Hash() string {
	data, _ := json.Marshal(s)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ParseColor parses #rgb or #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
