package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
)

// maxRecognitionAttempts bounds OCR calls per page: the first try plus one retry of a
// transient failure.
const maxRecognitionAttempts = 2

// PageSource is an opened document that renders pages on demand.
type PageSource interface {
	PageCount() int
	Render(ctx context.Context, index int, opts models.RenderOptions) (*models.Page, error)
}

// TextRecognizer performs OCR on a raster image.
type TextRecognizer interface {
	Recognize(ctx context.Context, img *models.RasterImage, languageHints []string) (models.RecognizedText, error)
}

// PageExtractor turns one page into a PageOutcome. It never returns an error: every
// failure ends up in a Failed outcome.
type PageExtractor struct {
	recognizer         TextRecognizer
	recognitionTimeout time.Duration
	retryDelay         time.Duration
	logger             *slog.Logger
}

// NewPageExtractor creates a PageExtractor. Each recognition attempt is bounded by
// recognitionTimeout; a transient failure is retried once after retryDelay.
func NewPageExtractor(recognizer TextRecognizer, recognitionTimeout, retryDelay time.Duration, logger *slog.Logger) *PageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageExtractor{
		recognizer:         recognizer,
		recognitionTimeout: recognitionTimeout,
		retryDelay:         retryDelay,
		logger:             logger,
	}
}

// Extract resolves page index of src. opts must already be resolved: the whole page runs
// under opts.PerPageTimeout, and exhausting it yields a page_timeout failure.
func (e *PageExtractor) Extract(ctx context.Context, src PageSource, index int, opts models.Options) models.PageOutcome {
	start := time.Now()
	pageCtx := ctx
	if opts.PerPageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, opts.PerPageTimeout)
		defer cancel()
	}

	outcome := e.extract(pageCtx, src, index, opts)
	if outcome.Status() == models.StatusFailed && ctx.Err() == nil && errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
		attempts := outcome.Attempts
		outcome = models.FailedOutcome(index, &models.PageTimeoutError{
			Page:  index,
			Limit: opts.PerPageTimeout.String(),
			Err:   outcome.Err(),
		})
		outcome.Attempts = attempts
	}
	outcome.Elapsed = time.Since(start)

	if outcome.Status() == models.StatusFailed && ctx.Err() == nil {
		e.logger.Warn("Page failed.", "page", index, "errorKind", outcome.ErrorKind(), "attempts", outcome.Attempts, "error", outcome.Err())
	}
	return outcome
}

func (e *PageExtractor) extract(ctx context.Context, src PageSource, index int, opts models.Options) models.PageOutcome {
	page, err := src.Render(ctx, index, models.RenderOptions{TargetDPI: opts.TargetDPI, ForceOCR: opts.ForceOCR})
	if err != nil {
		return models.FailedOutcome(index, err)
	}
	if page.HasEmbeddedText() {
		return models.ExtractedOutcome(index, page.EmbeddedText)
	}

	for attempt := 1; ; attempt++ {
		text, err := e.recognize(ctx, page.Image, opts.LanguageHints)
		if err == nil {
			outcome := models.RecognizedOutcome(index, text.Text, text.Confidence)
			outcome.Attempts = attempt
			return outcome
		}
		setPage(err, index)

		if !models.IsTransient(err) || attempt >= maxRecognitionAttempts {
			outcome := models.FailedOutcome(index, err)
			outcome.Attempts = attempt
			return outcome
		}
		e.logger.Warn("Recognition failed, will retry.", "page", index, "attempt", attempt, "delay", e.retryDelay.String(), "error", err)

		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			outcome := models.FailedOutcome(index, err)
			outcome.Attempts = attempt
			return outcome
		}
	}
}

// recognize runs one OCR attempt under the per-attempt timeout. Errors that are not
// already classified are reported as timeouts when the attempt ran out of time and as
// engine failures otherwise.
func (e *PageExtractor) recognize(ctx context.Context, img *models.RasterImage, hints []string) (models.RecognizedText, error) {
	attemptCtx := ctx
	if e.recognitionTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.recognitionTimeout)
		defer cancel()
	}

	text, err := e.recognizer.Recognize(attemptCtx, img, hints)
	if err == nil {
		return text, nil
	}
	var recErr *models.RecognitionError
	if errors.As(err, &recErr) {
		return models.RecognizedText{}, err
	}
	if attemptCtx.Err() != nil {
		return models.RecognizedText{}, &models.RecognitionError{Kind: models.KindRecognitionTimeout, Transient: true, Err: err}
	}
	return models.RecognizedText{}, &models.RecognitionError{Kind: models.KindRecognitionFailure, Err: err}
}

// setPage stamps the page index onto recognition errors, which engines raise without
// knowing which page they work on.
func setPage(err error, index int) {
	var recErr *models.RecognitionError
	if errors.As(err, &recErr) {
		recErr.Page = index
	}
}
