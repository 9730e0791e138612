package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfSource is an optimized PDF split into one single-page file per page inside a private
// work directory. Pages never share a file, so concurrent renders need no locking.
type pdfSource struct {
	cfg       Config
	workDir   string
	pageBase  string
	pageCount int
}

func openPDF(ctx context.Context, cfg Config, doc *models.Document) (*pdfSource, error) {
	workDir, err := os.MkdirTemp(cfg.TempDir, "ocr-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	s := &pdfSource{cfg: cfg, workDir: workDir}
	if err := s.prepare(ctx, doc.Data); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *pdfSource) prepare(ctx context.Context, data []byte) error {
	sourcePath := filepath.Join(s.workDir, "source.pdf")
	if err := os.WriteFile(sourcePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write source PDF: %w", err)
	}

	optimizedPath := filepath.Join(s.workDir, "optimized.pdf")
	if err := optimizePDF(sourcePath, optimizedPath); err != nil {
		return &models.DocumentError{Reason: "failed to validate/optimize PDF", Err: err}
	}
	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return &models.DocumentError{Reason: "failed to get page count", Err: err}
	}
	if pageCount <= 0 {
		return &models.DocumentError{Reason: "document declares zero pages"}
	}
	if pageCount > s.cfg.MaxPages {
		return &models.DocumentError{Reason: fmt.Sprintf("document has %d pages (max %d)", pageCount, s.cfg.MaxPages)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.SplitFile(optimizedPath, s.workDir, 1, relaxedConfig()); err != nil {
		return &models.DocumentError{Reason: "failed to split PDF", Err: err}
	}

	s.pageBase = strings.TrimSuffix(optimizedPath, filepath.Ext(optimizedPath))
	s.pageCount = pageCount
	s.cfg.Logger.Debug("PDF optimized and split locally.", "pageCount", pageCount, "workDir", s.workDir)
	return nil
}

func (s *pdfSource) PageCount() int { return s.pageCount }

func (s *pdfSource) Close() error {
	return os.RemoveAll(s.workDir)
}

// pagePath follows pdfcpu's split naming: <base>_<n>.pdf with 1-based n.
func (s *pdfSource) pagePath(index int) string {
	return fmt.Sprintf("%s_%d.pdf", s.pageBase, index+1)
}

func (s *pdfSource) Render(ctx context.Context, index int, opts models.RenderOptions) (*models.Page, error) {
	if index < 0 || index >= s.pageCount {
		return nil, outOfRange(index, s.pageCount)
	}
	pagePath := s.pagePath(index)

	pageCtx, err := readPageFile(pagePath)
	if err != nil {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderCorrupt, Err: err}
	}

	if !opts.ForceOCR {
		if text, ok := s.embeddedText(pageCtx); ok {
			return &models.Page{Index: index, EmbeddedText: text}, nil
		}
	}

	dims, err := pageCtx.PageDims()
	if err != nil || len(dims) == 0 {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderCorrupt, Err: fmt.Errorf("failed to read page dimensions: %v", err)}
	}
	if px := pixelsAt(dims[0].Width, dims[0].Height, opts.TargetDPI); overCeiling(px, s.cfg.MaxPagePixels) {
		return nil, &models.RenderError{
			Page: index,
			Kind: models.KindRenderCeiling,
			Err:  fmt.Errorf("page is %gx%gpt, %g pixels at %d DPI (max %d)", dims[0].Width, dims[0].Height, px, opts.TargetDPI, s.cfg.MaxPagePixels),
		}
	}

	rasterCtx, cancel := context.WithTimeout(ctx, s.cfg.RenderTimeout)
	defer cancel()
	data, err := s.cfg.Rasterizer.Rasterize(rasterCtx, pagePath, opts.TargetDPI)
	if err != nil {
		kind := models.KindRenderCorrupt
		if isDeadline(err) {
			kind = models.KindRenderCeiling
		}
		return nil, &models.RenderError{Page: index, Kind: kind, Err: err}
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderCorrupt, Err: fmt.Errorf("rasterizer produced an unreadable image: %w", err)}
	}

	return &models.Page{
		Index: index,
		Image: &models.RasterImage{
			Data:        data,
			Width:       cfg.Width,
			Height:      cfg.Height,
			PixelFormat: models.PixelGray8,
			DPI:         opts.TargetDPI,
		},
	}, nil
}

// embeddedText returns the normalized text layer of the page when it is present and
// readable enough to skip OCR.
func (s *pdfSource) embeddedText(pageCtx *model.Context) (string, bool) {
	r, err := pdfcpu.ExtractPageContent(pageCtx, 1)
	if err != nil || r == nil {
		return "", false
	}
	content, err := io.ReadAll(r)
	if err != nil || len(content) == 0 {
		return "", false
	}
	text := NormalizeText(TextFromContentStream(content))
	if text == "" || PrintableRatio(text) < s.cfg.MinPrintableRatio {
		return "", false
	}
	return text, true
}

func readPageFile(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ctx, err := api.ReadValidateAndOptimize(f, relaxedConfig())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

func optimizePDF(inPath, outPath string) error {
	return api.OptimizeFile(inPath, outPath, relaxedConfig())
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}
