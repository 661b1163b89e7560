// Package raster is the in-process rendering backend. It paints laid-out
// pages onto RGBA images using the Go fonts.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/render"
	"github.com/dgallion1/pageview/internal/typeface"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// MaxDimension bounds either side of a page in pixels.
const MaxDimension = 16384

var errFinished = errors.New("canvas already finished")

// Backend allocates RGBA canvases. It is stateless and safe for concurrent
// use.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) StartPage(width, height int) (render.Canvas, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, &render.BackendError{Op: "start", Err: fmt.Errorf("invalid page size %dx%d", width, height)}
	}
	return &Canvas{
		img:   image.NewRGBA(image.Rect(0, 0, width, height)),
		faces: typeface.NewCache(),
	}, nil
}

// Canvas paints one page. It is not safe for concurrent use.
type Canvas struct {
	img      *image.RGBA
	faces    *typeface.Cache
	finished bool
}

// DrawPage fills the canvas with the document background and paints every
// box of page.
func (c *Canvas) DrawPage(doc *box.Document, page *box.Page) error {
	if c.finished {
		return &render.BackendError{Op: "draw", Err: errFinished}
	}
	if page == nil || page.Root == nil {
		return &render.BackendError{Op: "draw", Err: errors.New("page has no root box")}
	}

	bg := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if doc != nil && doc.Background.A != 0 {
		bg = doc.Background
	}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if err := c.drawBox(page.Root); err != nil {
		return &render.BackendError{Op: "draw", Err: err}
	}
	return nil
}

func (c *Canvas) drawBox(b *box.Box) error {
	if b == nil {
		return nil
	}
	switch b.Kind {
	case box.KindBlock:
		if b.Style.Marker != "" && len(b.Children) > 0 {
			if err := c.drawMarker(b); err != nil {
				return err
			}
		}
	case box.KindText:
		if err := c.drawText(b); err != nil {
			return err
		}
	}
	for _, child := range b.Children {
		if err := c.drawBox(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Canvas) drawText(b *box.Box) error {
	if b.Text == "" {
		return nil
	}
	face, err := c.faces.Face(b.Style.FontSize, b.Style.Bold)
	if err != nil {
		return err
	}
	baseline := typeface.Baseline(face, b.Rect.Y, b.Rect.Height)
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(b.Style.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: typeface.ToFixed(b.Rect.X), Y: typeface.ToFixed(baseline)},
	}
	d.DrawString(b.Text)

	if b.Style.Underline {
		thickness := math.Max(1, b.Style.FontSize/16)
		y := baseline + math.Max(1, b.Style.FontSize/12)
		c.fillRect(b.Rect.X, y, b.Rect.X+b.Rect.Width, y+thickness, b.Style.Color)
	}
	return nil
}

// drawMarker paints the block marker right-aligned in the indent, on the
// baseline of the first line.
func (c *Canvas) drawMarker(b *box.Box) error {
	face, err := c.faces.Face(b.Style.FontSize, false)
	if err != nil {
		return err
	}
	first := b.Children[0].Rect
	baseline := typeface.Baseline(face, first.Y, first.Height)
	x := b.Rect.X - typeface.Width(face, b.Style.Marker) - b.Style.FontSize/2
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(b.Style.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: typeface.ToFixed(x), Y: typeface.ToFixed(baseline)},
	}
	d.DrawString(b.Style.Marker)
	return nil
}

// fillRect composites an anti-aliased rectangle, clipped to the canvas.
func (c *Canvas) fillRect(x0, y0, x1, y1 float64, col color.RGBA) {
	bounds := c.img.Bounds()
	x0 = math.Max(x0, float64(bounds.Min.X))
	y0 = math.Max(y0, float64(bounds.Min.Y))
	x1 = math.Min(x1, float64(bounds.Max.X))
	y1 = math.Min(y1, float64(bounds.Max.Y))
	if x1 <= x0 || y1 <= y0 {
		return
	}

	// The rasterizer mask covers only the pixels the rectangle touches.
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	z.MoveTo(float32(x0-ox), float32(y0-oy))
	z.LineTo(float32(x1-ox), float32(y0-oy))
	z.LineTo(float32(x1-ox), float32(y1-oy))
	z.LineTo(float32(x0-ox), float32(y1-oy))
	z.ClosePath()
	z.Draw(c.img, r, image.NewUniform(col), image.Point{})
}

// Finish seals the canvas and hands back its pixels.
func (c *Canvas) Finish() (int, int, render.Surface, error) {
	if c.finished {
		return 0, 0, nil, &render.BackendError{Op: "finish", Err: errFinished}
	}
	c.finished = true
	c.faces.Close()
	b := c.img.Bounds()
	return b.Dx(), b.Dy(), &Surface{img: c.img}, nil
}

// Surface is a finished page image.
type Surface struct {
	img *image.RGBA
}

// NewSurface wraps img. Mostly useful in tests.
func NewSurface(img *image.RGBA) *Surface {
	return &Surface{img: img}
}

func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// Image returns the underlying pixels.
func (s *Surface) Image() *image.RGBA { return s.img }

func (s *Surface) WritePNG(w io.Writer) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, s.img)
}
