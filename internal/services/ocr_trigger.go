package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/google/uuid"
)

// OCRTriggerConfig holds the workflow hand-off settings of the storage trigger. An empty
// WorkflowID disables the hand-off.
type OCRTriggerConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
}

// ResultHandoff passes a result summary downstream and returns an execution reference.
type ResultHandoff func(ctx context.Context, summary models.ResultSummary) (string, error)

// OCRTriggerFunction extracts the text of every document finalized in a bucket.
type OCRTriggerFunction struct {
	pipeline *DocumentPipeline
	fetch    ObjectFetcher
	handoff  ResultHandoff
	config   OCRTriggerConfig
}

func NewOCRTrigger(ctx context.Context) (*OCRTriggerFunction, error) {
	pipelineCfg, err := LoadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config := OCRTriggerConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
	}
	if config.WorkflowID != "" && config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set when WORKFLOW_ID is set")
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &OCRTriggerFunction{
		pipeline: NewPipelineFromConfig(pipelineCfg, slog.Default()),
		fetch:    StorageFetcher(storageClient),
		config:   config,
	}
	if config.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		target := gcp.WorkflowTarget{ProjectID: config.ProjectID, Location: config.WorkflowLocation, WorkflowID: config.WorkflowID}
		f.handoff = func(ctx context.Context, summary models.ResultSummary) (string, error) {
			return gcp.TriggerWorkflow(ctx, executionsClient, target, summary)
		}
	}
	slog.Info("OCR trigger initialized.", "workflowId", config.WorkflowID)
	return f, nil
}

// Process handles one object.finalize event. Objects that can never be processed (gone,
// too large, unsupported or unreadable) are logged and acknowledged; only failures that a
// redelivery might fix are returned.
func (f *OCRTriggerFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if e.Bucket == "" || e.Name == "" {
		logCtx.Error("Event lacks bucket or object name. Skipping.")
		return nil
	}
	if strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Folder placeholder object. Skipping.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	obj, err := f.fetch(ctx, e.Bucket, e.Name, f.pipeline.Config().MaxDocumentBytes)
	switch {
	case errors.Is(err, gcp.ErrObjectNotFound):
		logCtx.Warn("Source object no longer exists. Skipping.", "error", err)
		return nil
	case errors.Is(err, gcp.ErrObjectTooLarge):
		logCtx.Error("Source object exceeds the size limit. Skipping.", "error", err)
		return nil
	case err != nil:
		return f.handleError(logCtx, "failed to download source document", err)
	}

	fileHash := hashBytes(obj.Data)
	logCtx = logCtx.With("fileHash", fileHash)

	doc, err := models.NewDocument(obj.Data, firstNonEmpty(obj.ContentType, e.ContentType), obj.Name)
	if err != nil {
		logCtx.Info("Unsupported object type. Skipping.", "error", err)
		return nil
	}

	result, err := f.pipeline.Process(ctx, doc, models.Options{})
	if err != nil {
		var docErr *models.DocumentError
		if errors.As(err, &docErr) {
			logCtx.Error("Document rejected. Skipping.", "error", err)
			return nil
		}
		return f.handleError(logCtx, "failed to process document", err)
	}

	summary := SummarizeResult(uuid.NewString(), fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name), fileHash, result)
	logCtx = logCtx.With("runId", summary.RunID)
	logCtx.Info("Document OCR complete.",
		"overallStatus", summary.OverallStatus,
		"pageCount", summary.PageCount,
		"failedPages", summary.FailedPages,
		"textBytes", summary.TextBytes)

	if f.handoff == nil {
		return nil
	}
	execution, err := f.handoff(ctx, summary)
	if err != nil {
		return f.handleError(logCtx, "failed to trigger workflow execution", err)
	}
	logCtx.Info("Hand-off to workflow complete.", "execution", execution)
	return nil
}

func (f *OCRTriggerFunction) handleError(logCtx *slog.Logger, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	return fmt.Errorf("%s: %w", message, originalErr)
}

// SummarizeResult condenses a result for downstream hand-off.
func SummarizeResult(runID, source, fileHash string, result *models.DocumentResult) models.ResultSummary {
	return models.ResultSummary{
		RunID:         runID,
		Source:        source,
		FileHash:      fileHash,
		OverallStatus: result.Status(),
		PageCount:     len(result.Pages),
		FailedPages:   result.FailedPages(),
		TextBytes:     len(result.Text),
		ElapsedMs:     result.Elapsed.Milliseconds(),
	}
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
