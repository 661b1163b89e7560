// Package render defines the contract between the page pipeline and a
// rendering backend.
package render

import (
	"fmt"
	"image"
	"io"

	"github.com/dgallion1/pageview/internal/box"
)

// Surface is a finished raster that can serialize itself losslessly.
type Surface interface {
	Bounds() image.Rectangle
	WritePNG(w io.Writer) error
}

// Canvas is a drawing context for a single page.
type Canvas interface {
	DrawPage(doc *box.Document, page *box.Page) error
	Finish() (width, height int, surface Surface, err error)
}

// Backend allocates page canvases.
type Backend interface {
	StartPage(width, height int) (Canvas, error)
}

// BackendError reports a backend failure to allocate, paint or finish a page.
type BackendError struct {
	Op  string // "start", "draw" or "finish"
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("render backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
