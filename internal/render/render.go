// Package render turns input documents into pages: either the embedded text layer of a
// PDF page or a grayscale raster image ready for OCR.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Source is an opened document. It owns any temporary state derived from the document
// and must be closed by the caller.
type Source interface {
	PageCount() int
	Render(ctx context.Context, index int, opts models.RenderOptions) (*models.Page, error)
	Close() error
}

// Rasterizer converts a single-page PDF file into PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int) ([]byte, error)
}

// Config holds the resource ceilings applied while opening and rendering documents.
type Config struct {
	// MaxPages rejects documents declaring more pages (default 500).
	MaxPages int
	// MaxPagePixels rejects pages whose raster would exceed this many pixels (default 60M).
	MaxPagePixels int64
	// MinPrintableRatio is the minimum share of printable runes for a text layer to be
	// trusted (default 0.85).
	MinPrintableRatio float64
	// RenderTimeout bounds a single rasterization (default 60s).
	RenderTimeout time.Duration
	// TempDir is the parent of per-document work directories (default os.TempDir()).
	TempDir string

	Rasterizer Rasterizer
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	if c.MaxPagePixels <= 0 {
		c.MaxPagePixels = 60_000_000
	}
	if c.MinPrintableRatio <= 0 {
		c.MinPrintableRatio = 0.85
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 60 * time.Second
	}
	if c.Rasterizer == nil {
		c.Rasterizer = &Pdftoppm{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer opens documents of any supported format.
type Renderer struct {
	cfg Config
}

// New creates a Renderer. pdfcpu's on-disk configuration directory is disabled so the
// service never writes outside its temp directories.
func New(cfg Config) *Renderer {
	cfg.defaults()
	api.DisableConfigDir()
	return &Renderer{cfg: cfg}
}

// Open inspects the document structure and resolves its page count. Any failure to parse
// the document is reported as a *models.DocumentError.
func (r *Renderer) Open(ctx context.Context, doc *models.Document) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case doc.Format == models.FormatPDF:
		return openPDF(ctx, r.cfg, doc)
	case doc.Format.IsImage():
		return openImage(r.cfg, doc)
	}
	return nil, &models.DocumentError{Reason: "unsupported format " + string(doc.Format)}
}

func outOfRange(index, pageCount int) error {
	return &models.RenderError{
		Page: index,
		Kind: models.KindRenderOutOfRange,
		Err:  fmt.Errorf("page index %d outside [0, %d)", index, pageCount),
	}
}

// pixelsAt returns the raster size in pixels of a page measured in PDF points, or NaN when
// either side is not positive.
func pixelsAt(widthPt, heightPt float64, dpi int) float64 {
	w := widthPt / 72 * float64(dpi)
	h := heightPt / 72 * float64(dpi)
	if !(w > 0 && h > 0) {
		return math.NaN()
	}
	return w * h
}

// overCeiling reports whether a raster of px pixels must not be produced. NaN stands for
// degenerate dimensions.
func overCeiling(px float64, maxPixels int64) bool {
	return math.IsNaN(px) || math.IsInf(px, 0) || px > float64(maxPixels)
}
