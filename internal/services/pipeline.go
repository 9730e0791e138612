package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/Lllllllleong/documentocr/internal/render"
	"golang.org/x/sync/errgroup"
)

// DocumentOpener opens a document for page-by-page rendering. *render.Renderer is the
// production implementation.
type DocumentOpener interface {
	Open(ctx context.Context, doc *models.Document) (render.Source, error)
}

// DocumentPipeline runs the per-page extraction of a whole document with bounded
// concurrency and assembles the ordered result.
type DocumentPipeline struct {
	cfg       PipelineConfig
	opener    DocumentOpener
	extractor *PageExtractor
	logger    *slog.Logger
}

// NewDocumentPipeline creates a DocumentPipeline. cfg supplies the defaults for every
// per-request option left at its zero value.
func NewDocumentPipeline(cfg PipelineConfig, opener DocumentOpener, recognizer TextRecognizer, logger *slog.Logger) *DocumentPipeline {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentPipeline{
		cfg:       cfg,
		opener:    opener,
		extractor: NewPageExtractor(recognizer, cfg.RecognitionTimeout, cfg.RetryDelay, logger),
		logger:    logger,
	}
}

// Config returns the pipeline's process configuration.
func (p *DocumentPipeline) Config() PipelineConfig {
	return p.cfg
}

// ResolveOptions fills zero-valued options from the process configuration and clamps the
// DPI to the configured maximum.
func (p *DocumentPipeline) ResolveOptions(opts models.Options) models.Options {
	resolved := opts
	if resolved.TargetDPI <= 0 {
		resolved.TargetDPI = p.cfg.TargetDPI
	}
	if resolved.TargetDPI > p.cfg.MaxDPI {
		resolved.TargetDPI = p.cfg.MaxDPI
	}
	if resolved.MaxConcurrency <= 0 {
		resolved.MaxConcurrency = p.cfg.MaxConcurrency
	}
	if resolved.PerPageTimeout <= 0 {
		resolved.PerPageTimeout = p.cfg.PerPageTimeout
	}
	if len(resolved.LanguageHints) == 0 {
		resolved.LanguageHints = slices.Clone(p.cfg.Languages)
	}
	return resolved
}

// Process extracts the text of every page of doc. It returns a DocumentResult whenever the
// document could be opened, whatever the page outcomes. The only errors are
// *models.DocumentError, models.ErrCancelled and *models.InternalError.
func (p *DocumentPipeline) Process(ctx context.Context, doc *models.Document, opts models.Options) (*models.DocumentResult, error) {
	start := time.Now()
	if doc == nil || len(doc.Data) == 0 {
		return nil, &models.DocumentError{Reason: "empty document"}
	}
	if size := int64(len(doc.Data)); size > p.cfg.MaxDocumentBytes {
		return nil, &models.DocumentError{Reason: fmt.Sprintf("document is %d bytes (max %d)", size, p.cfg.MaxDocumentBytes)}
	}
	if doc.Format == "" {
		format, err := models.DetectFormat(doc.Data, "", doc.Filename)
		if err != nil {
			return nil, err
		}
		detected := *doc
		detected.Format = format
		doc = &detected
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	resolved := p.ResolveOptions(opts)
	logCtx := p.logger.With("filename", doc.Filename, "format", doc.Format, "bytes", len(doc.Data))

	src, err := p.opener.Open(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		var docErr *models.DocumentError
		if !errors.As(err, &docErr) {
			err = &models.DocumentError{Reason: "failed to open document", Err: err}
		}
		logCtx.Warn("Document rejected.", "error", err)
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logCtx.Warn("Failed to release document resources.", "error", err)
		}
	}()

	pageCount := src.PageCount()
	if pageCount <= 0 {
		return nil, &models.DocumentError{Reason: "document has no pages"}
	}
	logCtx = logCtx.With("pageCount", pageCount)
	logCtx.Info("Starting page extraction.", "maxConcurrency", resolved.MaxConcurrency, "targetDpi", resolved.TargetDPI, "forceOcr", resolved.ForceOCR)

	// Each worker owns exactly one arena slot.
	arena := make([]*models.PageOutcome, pageCount)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(resolved.MaxConcurrency)
	for i := 0; i < pageCount; i++ {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			outcome := p.extractor.Extract(gctx, src, i, resolved)
			arena[i] = &outcome
			return nil
		})
	}
	_ = eg.Wait()

	if ctx.Err() != nil {
		logCtx.Warn("Document processing cancelled.", "error", context.Cause(ctx))
		return nil, cancelled(ctx)
	}

	outcomes := make([]models.PageOutcome, 0, pageCount)
	for _, o := range arena {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	result, err := AssembleResult(pageCount, outcomes, time.Since(start))
	if err != nil {
		logCtx.Error("Failed to assemble result.", "error", err)
		return nil, err
	}

	logCtx.Info("Document processed.",
		"overallStatus", result.Status(),
		"failedPages", result.FailedPages(),
		"elapsedMs", result.Elapsed.Milliseconds())
	return result, nil
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", models.ErrCancelled, context.Cause(ctx))
}
