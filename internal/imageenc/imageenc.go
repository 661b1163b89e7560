// Package imageenc turns a rendered surface into a data URL that can be used
// directly as an image source.
package imageenc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dgallion1/pageview/internal/render"
)

const dataURLPrefix = "data:image/png;base64,"

// EncodingError reports a surface that could not be serialized.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode surface: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

var errEmptySurface = errors.New("empty surface")

// Encode serializes s as PNG and returns it as a base64 data URL.
func Encode(s render.Surface) (string, error) {
	if s == nil {
		return "", &EncodingError{Err: errors.New("nil surface")}
	}
	if s.Bounds().Empty() {
		return "", &EncodingError{Err: errEmptySurface}
	}

	var buf bytes.Buffer
	if err := s.WritePNG(&buf); err != nil {
		return "", &EncodingError{Err: err}
	}
	if buf.Len() == 0 {
		return "", &EncodingError{Err: errors.New("surface produced no bytes")}
	}

	out := make([]byte, len(dataURLPrefix)+base64.StdEncoding.EncodedLen(buf.Len()))
	copy(out, dataURLPrefix)
	base64.StdEncoding.Encode(out[len(dataURLPrefix):], buf.Bytes())
	return string(out), nil
}
