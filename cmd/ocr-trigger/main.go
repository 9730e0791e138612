package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/Lllllllleong/documentocr/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
)

var (
	triggerInstance *services.OCRTriggerFunction
	once            sync.Once
	initErr         error
)

func init() {
	_ = godotenv.Load()

	// --- Set up structured logging ---
	slog.SetDefault(gcp.NewJSONLogger(os.Stdout))

	// Register the CloudEvent function for google.cloud.storage.object.v1.finalized.
	functions.CloudEvent("OCRObjectFinalized", ocrObjectFinalized)
}

// main is required by the Go Functions Framework.
func main() {}

// ocrObjectFinalized is the Cloud Function entry point.
func ocrObjectFinalized(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		triggerInstance, initErr = services.NewOCRTrigger(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context within Process; returning one marks the invocation
	// as failed so the event is redelivered.
	return triggerInstance.Process(ctx, gcsEvent)
}
