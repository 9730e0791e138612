package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRasterizer returns a fixed PNG and records the DPI it was asked for.
type fakeRasterizer struct {
	calls int
	dpi   int
	err   error
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string, dpi int) ([]byte, error) {
	f.calls++
	f.dpi = dpi
	if f.err != nil {
		return nil, f.err
	}
	return encodePNG(image.NewGray(image.Rect(0, 0, 40, 20))), nil
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// buildPDF writes a minimal PDF with one page per entry. A non-empty entry becomes a
// Helvetica text line; an empty entry is a page without text.
func buildPDF(pages ...string) []byte {
	return buildPDFWithMediaBox("0 0 612 792", pages...)
}

func buildPDFWithMediaBox(mediaBox string, pages ...string) []byte {
	n := len(pages)
	// Objects: 1 catalog, 2 pages, 3 font, then (page, content) pairs.
	total := 3 + 2*n
	offsets := make([]int, total+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		stream := "q Q"
		if text != "" {
			stream = "BT\n/F1 12 Tf\n72 720 Td\n(" + text + ") Tj\nET"
		}
		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [%s] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, mediaBox, contentObj)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%s\n%%%%EOF\n", total+1, strconv.Itoa(xrefOffset))
	return []byte(b.String())
}

func newTestRenderer(t *testing.T, raster Rasterizer, mutate func(*Config)) *Renderer {
	t.Helper()
	cfg := Config{TempDir: t.TempDir(), Rasterizer: raster}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func openDoc(t *testing.T, r *Renderer, data []byte) Source {
	t.Helper()
	doc, err := models.NewDocument(data, "", "")
	require.NoError(t, err)
	src, err := r.Open(context.Background(), doc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestOpenPDF_PageCount(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	src := openDoc(t, r, buildPDF("Hello", "", "Third page"))
	assert.Equal(t, 3, src.PageCount())
}

func TestOpenPDF_DoesNotMutateInput(t *testing.T) {
	data := buildPDF("Hello")
	original := append([]byte(nil), data...)

	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	src := openDoc(t, r, data)
	_, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestOpenPDF_Corrupt(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	doc := &models.Document{Data: []byte("%PDF-1.4\nthis is not a pdf body"), Format: models.FormatPDF}

	_, err := r.Open(context.Background(), doc)
	var docErr *models.DocumentError
	require.ErrorAs(t, err, &docErr)
}

func TestOpenPDF_TooManyPages(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, func(c *Config) { c.MaxPages = 2 })
	doc := &models.Document{Data: buildPDF("a", "b", "c"), Format: models.FormatPDF}

	_, err := r.Open(context.Background(), doc)
	var docErr *models.DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Contains(t, docErr.Reason, "max 2")
}

func TestRenderPDF_EmbeddedText(t *testing.T) {
	raster := &fakeRasterizer{}
	r := newTestRenderer(t, raster, nil)
	src := openDoc(t, r, buildPDF("Hello World"))

	page, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
	require.NoError(t, err)
	assert.True(t, page.HasEmbeddedText())
	assert.Equal(t, "Hello World", page.EmbeddedText)
	assert.Zero(t, raster.calls)
}

func TestRenderPDF_ForceOCRRasterizes(t *testing.T) {
	raster := &fakeRasterizer{}
	r := newTestRenderer(t, raster, nil)
	src := openDoc(t, r, buildPDF("Hello World"))

	page, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 300, ForceOCR: true})
	require.NoError(t, err)
	require.NotNil(t, page.Image)
	assert.Equal(t, 1, raster.calls)
	assert.Equal(t, 300, raster.dpi)
	assert.Equal(t, 40, page.Image.Width)
	assert.Equal(t, 20, page.Image.Height)
	assert.Equal(t, 300, page.Image.DPI)
}

func TestRenderPDF_BlankPageRasterizes(t *testing.T) {
	raster := &fakeRasterizer{}
	r := newTestRenderer(t, raster, nil)
	src := openDoc(t, r, buildPDF("first", ""))

	page, err := src.Render(context.Background(), 1, models.RenderOptions{TargetDPI: 200})
	require.NoError(t, err)
	assert.False(t, page.HasEmbeddedText())
	assert.Equal(t, 1, page.Index)
	assert.Equal(t, 1, raster.calls)
}

func TestRenderPDF_PixelCeiling(t *testing.T) {
	raster := &fakeRasterizer{}
	r := newTestRenderer(t, raster, func(c *Config) { c.MaxPagePixels = 1000 })
	src := openDoc(t, r, buildPDF(""))

	_, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
	var renderErr *models.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, models.KindRenderCeiling, renderErr.Kind)
	assert.Zero(t, raster.calls)
}

func TestRenderPDF_HugeMediaBoxHitsCeiling(t *testing.T) {
	raster := &fakeRasterizer{}
	r := newTestRenderer(t, raster, nil)
	src := openDoc(t, r, buildPDFWithMediaBox("0 0 4000000000 4000000000", ""))

	_, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 72, ForceOCR: true})
	var renderErr *models.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, models.KindRenderCeiling, renderErr.Kind)
	assert.Zero(t, raster.calls)
}

func TestPixelCeiling(t *testing.T) {
	tests := []struct {
		name   string
		w, h   float64
		dpi    int
		exceed bool
	}{
		{"letter at 200 DPI", 612, 792, 200, false},
		{"letter at 600 DPI", 612, 792, 600, true},
		{"product overflows int64", 4e9, 4e9, 72, true},
		{"infinite", math.Inf(1), 792, 200, true},
		{"zero width", 0, 792, 200, true},
		{"negative height", 612, -792, 200, true},
		{"nan", math.NaN(), 792, 200, true},
		{"zero dpi", 612, 792, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exceed, overCeiling(pixelsAt(tt.w, tt.h, tt.dpi), 30_000_000))
		})
	}
}

func TestRenderPDF_RasterizerFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind models.ErrorKind
	}{
		{"timeout", fmt.Errorf("pdftoppm aborted: %w", context.DeadlineExceeded), models.KindRenderCeiling},
		{"crash", errors.New("pdftoppm failed: exit status 1"), models.KindRenderCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, &fakeRasterizer{err: tt.err}, nil)
			src := openDoc(t, r, buildPDF(""))

			_, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
			var renderErr *models.RenderError
			require.ErrorAs(t, err, &renderErr)
			assert.Equal(t, tt.kind, renderErr.Kind)
		})
	}
}

func TestRenderPDF_OutOfRange(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	src := openDoc(t, r, buildPDF("only"))

	for _, index := range []int{-1, 1, 7} {
		_, err := src.Render(context.Background(), index, models.RenderOptions{TargetDPI: 200})
		var renderErr *models.RenderError
		require.ErrorAs(t, err, &renderErr)
		assert.Equal(t, models.KindRenderOutOfRange, renderErr.Kind)
	}
}

func TestImage_RendersGrayscale(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for x := 0; x < 30; x++ {
		rgba.Set(x, 5, color.RGBA{R: 200, A: 255})
	}
	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	src := openDoc(t, r, encodePNG(rgba))
	require.Equal(t, 1, src.PageCount())

	page, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
	require.NoError(t, err)
	require.NotNil(t, page.Image)
	assert.Equal(t, models.PixelGray8, page.Image.PixelFormat)
	assert.Equal(t, 30, page.Image.Width)
	assert.Equal(t, 10, page.Image.Height)

	decoded, err := png.Decode(bytes.NewReader(page.Image.Data))
	require.NoError(t, err)
	_, isGray := decoded.(*image.Gray)
	assert.True(t, isGray)
}

func TestImage_Ceiling(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, func(c *Config) { c.MaxPagePixels = 100 })
	src := openDoc(t, r, encodePNG(image.NewGray(image.Rect(0, 0, 20, 20))))

	_, err := src.Render(context.Background(), 0, models.RenderOptions{TargetDPI: 200})
	var renderErr *models.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, models.KindRenderCeiling, renderErr.Kind)

	_, err = src.Render(context.Background(), 1, models.RenderOptions{TargetDPI: 200})
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, models.KindRenderOutOfRange, renderErr.Kind)
}

func TestImage_CorruptHeader(t *testing.T) {
	r := newTestRenderer(t, &fakeRasterizer{}, nil)
	doc := &models.Document{Data: []byte("\x89PNG\r\n\x1a\ntruncated"), Format: models.FormatPNG}

	_, err := r.Open(context.Background(), doc)
	var docErr *models.DocumentError
	require.ErrorAs(t, err, &docErr)
}
