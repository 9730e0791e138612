package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/models"
)

// ObjectFetcher downloads a Cloud Storage object of at most maxBytes.
type ObjectFetcher func(ctx context.Context, bucket, object string, maxBytes int64) (*gcp.Object, error)

// StorageFetcher fetches objects with an existing storage client.
func StorageFetcher(client *storage.Client) ObjectFetcher {
	return func(ctx context.Context, bucket, object string, maxBytes int64) (*gcp.Object, error) {
		return gcp.FetchObject(ctx, client, bucket, object, maxBytes)
	}
}

// lazyStorageFetcher creates the storage client on first use, so an API that only ever
// receives uploads never needs Cloud Storage credentials.
func lazyStorageFetcher() ObjectFetcher {
	var (
		once    sync.Once
		client  *storage.Client
		initErr error
	)
	return func(ctx context.Context, bucket, object string, maxBytes int64) (*gcp.Object, error) {
		once.Do(func() {
			client, initErr = storage.NewClient(context.Background())
		})
		if initErr != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", initErr)
		}
		return gcp.FetchObject(ctx, client, bucket, object, maxBytes)
	}
}

// OCRFunction serves OCR requests for uploaded documents and Cloud Storage objects.
type OCRFunction struct {
	pipeline *DocumentPipeline
	fetch    ObjectFetcher
	logger   *slog.Logger
}

// NewOCRService loads the process configuration and builds the production pipeline.
func NewOCRService(ctx context.Context) (*OCRFunction, error) {
	cfg, err := LoadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.Default()
	f := NewOCRFunction(NewPipelineFromConfig(cfg, logger), lazyStorageFetcher(), logger)
	logger.Info("OCR service initialized.",
		"targetDpi", cfg.TargetDPI,
		"maxConcurrency", cfg.MaxConcurrency,
		"languages", cfg.Languages)
	return f, nil
}

// NewOCRFunction assembles an OCRFunction from its collaborators.
func NewOCRFunction(pipeline *DocumentPipeline, fetch ObjectFetcher, logger *slog.Logger) *OCRFunction {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRFunction{pipeline: pipeline, fetch: fetch, logger: logger}
}

// MaxDocumentBytes is the largest document the pipeline accepts.
func (f *OCRFunction) MaxDocumentBytes() int64 {
	return f.pipeline.Config().MaxDocumentBytes
}

// DefaultLanguages are the languages used when a request carries no hints.
func (f *OCRFunction) DefaultLanguages() []string {
	return f.pipeline.Config().Languages
}

// Process runs the pipeline over an in-memory document.
func (f *OCRFunction) Process(ctx context.Context, doc *models.Document, opts models.Options) (*models.DocumentResult, error) {
	logCtx := f.logger.With("filename", doc.Filename, "format", doc.Format)
	logCtx.Info("Starting OCR request.", "bytes", len(doc.Data), "forceOcr", opts.ForceOCR, "languageHints", opts.LanguageHints)
	return f.pipeline.Process(ctx, doc, opts)
}

// ProcessGCS downloads the object named by req.GCSUri and runs the pipeline over it.
func (f *OCRFunction) ProcessGCS(ctx context.Context, req *models.OCRRequest) (*models.DocumentResult, error) {
	bucket, object, err := gcp.ParseGCSURI(req.GCSUri)
	if err != nil {
		return nil, err
	}
	obj, err := f.fetch(ctx, bucket, object, f.MaxDocumentBytes())
	if err != nil {
		f.logger.Error("Failed to download source document", "gcsUri", req.GCSUri, "error", err)
		return nil, err
	}
	doc, err := models.NewDocument(obj.Data, obj.ContentType, obj.Name)
	if err != nil {
		return nil, err
	}
	return f.Process(ctx, doc, OptionsFromRequest(req))
}

// OptionsFromRequest maps the request fields onto pipeline options.
func OptionsFromRequest(req *models.OCRRequest) models.Options {
	return models.Options{
		ForceOCR:      req.ForceOCR,
		LanguageHints: req.LanguageHints,
		TargetDPI:     req.TargetDPI,
	}
}
