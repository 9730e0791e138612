package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/Lllllllleong/documentocr/internal/render"
)

// stubPage describes how a stubSource page renders. A page with embedded text resolves
// without OCR; other pages render to an image whose Data is the page key.
type stubPage struct {
	key       string
	embedded  string
	renderErr error
}

type stubSource struct {
	pages   []stubPage
	renders atomic.Int32
	closed  atomic.Bool
}

func (s *stubSource) PageCount() int { return len(s.pages) }

func (s *stubSource) Render(ctx context.Context, index int, opts models.RenderOptions) (*models.Page, error) {
	s.renders.Add(1)
	if index < 0 || index >= len(s.pages) {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderOutOfRange}
	}
	p := s.pages[index]
	switch {
	case p.renderErr != nil:
		return nil, p.renderErr
	case p.embedded != "" && !opts.ForceOCR:
		return &models.Page{Index: index, EmbeddedText: p.embedded}, nil
	}
	return &models.Page{Index: index, Image: &models.RasterImage{
		Data:        []byte(p.key),
		Width:       10,
		Height:      10,
		PixelFormat: models.PixelGray8,
		DPI:         opts.TargetDPI,
	}}, nil
}

func (s *stubSource) Close() error {
	s.closed.Store(true)
	return nil
}

type stubOpener struct {
	src    *stubSource
	err    error
	opened atomic.Int32
}

func (o *stubOpener) Open(ctx context.Context, doc *models.Document) (render.Source, error) {
	o.opened.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

// recognizeFunc answers the n-th (1-based) recognition call for a page key.
type recognizeFunc func(ctx context.Context, key string, n int) (models.RecognizedText, error)

type stubRecognizer struct {
	fn recognizeFunc

	mu    sync.Mutex
	calls map[string]int
	hints [][]string
	dpis  []int
}

func newStubRecognizer(fn recognizeFunc) *stubRecognizer {
	return &stubRecognizer{fn: fn, calls: make(map[string]int)}
}

func (r *stubRecognizer) Recognize(ctx context.Context, img *models.RasterImage, languageHints []string) (models.RecognizedText, error) {
	key := string(img.Data)
	r.mu.Lock()
	r.calls[key]++
	n := r.calls[key]
	r.hints = append(r.hints, languageHints)
	r.dpis = append(r.dpis, img.DPI)
	r.mu.Unlock()
	return r.fn(ctx, key, n)
}

func (r *stubRecognizer) callsFor(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

func (r *stubRecognizer) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

// textByKey recognizes every page as "text <key>" with confidence 0.9.
func textByKey(ctx context.Context, key string, n int) (models.RecognizedText, error) {
	return models.RecognizedText{Text: "text " + key, Confidence: 0.9}, nil
}

// blockUntilDone simulates an engine that never finishes before its context ends.
func blockUntilDone(ctx context.Context, key string, n int) (models.RecognizedText, error) {
	<-ctx.Done()
	return models.RecognizedText{}, ctx.Err()
}

func testPipelineConfig() PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.MaxConcurrency = 4
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func pdfDocument() *models.Document {
	return &models.Document{Data: []byte("%PDF-1.4 stub"), Format: models.FormatPDF, Filename: "stub.pdf"}
}
