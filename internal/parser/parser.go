package parser

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/pageview/internal/doctree"
)

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// Options tune parser selection.
type Options struct {
	// BaseURL resolves relative links in HTML and Markdown. Nil keeps them
	// as written.
	BaseURL              *url.URL
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{BaseURL: opts.BaseURL}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{BaseURL: opts.BaseURL}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// ForContentType picks a parser from a MIME type, falling back to the
// extension of name (a filename or URL path).
func ForContentType(contentType, name string, opts Options) (Parser, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{BaseURL: opts.BaseURL}, nil
	case "text/markdown", "text/x-markdown":
		return &MarkdownParser{BaseURL: opts.BaseURL}, nil
	case "text/csv":
		return &CSVParser{}, nil
	case "application/pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return &DOCXParser{}, nil
	}

	if p, err := ForFile(path.Base(name), opts); err == nil {
		return p, nil
	}
	if mediaType == "text/plain" {
		return &TextParser{}, nil
	}
	if mediaType == "" {
		// Pages without an extension or type are most likely HTML.
		return &HTMLParser{BaseURL: opts.BaseURL}, nil
	}
	return nil, fmt.Errorf("unsupported content type: %s", mediaType)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// TitleFromFilename strips the extension from a filename.
func TitleFromFilename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
