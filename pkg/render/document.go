// Package render opens invoice documents and rasterizes their pages to PNG.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
)

// DefaultScale is the magnification used for page bitmaps.
const DefaultScale = 2.0

const baseDPI = 72.0

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrClosed          = errors.New("document closed")
)

// Document is an opened, paged document.
type Document interface {
	PageCount() int
	ContentType() string
	// RenderPNG rasterizes page at scale and returns PNG bytes.
	RenderPNG(page int, scale float64) ([]byte, error)
	Close() error
}

// Open sniffs data and opens it as a PDF or a single-page image.
func Open(data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, errors.New("document is empty")
	}
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		return openPDF(data)
	case mtype.Is("image/png"), mtype.Is("image/jpeg"):
		return openImage(data, mtype.String())
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
}

type pdfDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func openPDF(data []byte) (*pdfDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := doc.NumPage()
	if pages <= 0 {
		_ = doc.Close()
		return nil, errors.New("pdf has no pages")
	}
	return &pdfDocument{doc: doc, pages: pages}, nil
}

func (d *pdfDocument) PageCount() int      { return d.pages }
func (d *pdfDocument) ContentType() string { return "application/pdf" }

func (d *pdfDocument) RenderPNG(page int, scale float64) ([]byte, error) {
	if page < 0 || page >= d.pages {
		return nil, ErrPageOutOfRange
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	img, err := d.doc.ImageDPI(page, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return encodePNG(img)
}

func (d *pdfDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type imageDocument struct {
	img         image.Image
	contentType string
}

func openImage(data []byte, contentType string) (*imageDocument, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &imageDocument{img: img, contentType: contentType}, nil
}

func (d *imageDocument) PageCount() int      { return 1 }
func (d *imageDocument) ContentType() string { return d.contentType }

func (d *imageDocument) RenderPNG(page int, scale float64) ([]byte, error) {
	if page != 0 {
		return nil, ErrPageOutOfRange
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	bounds := d.img.Bounds()
	width := int(float64(bounds.Dx()) * scale)
	if width < 1 {
		width = 1
	}
	return encodePNG(imaging.Resize(d.img, width, 0, imaging.Lanczos))
}

func (d *imageDocument) Close() error { return nil }

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
