package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/httpapi"
	"github.com/Lllllllleong/documentocr/internal/services"
	"github.com/joho/godotenv"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	// A local .env is optional; deployed functions get their environment from the platform.
	_ = godotenv.Load()

	// --- Set up structured logging ---
	slog.SetDefault(gcp.NewJSONLogger(os.Stdout))

	functions.HTTP("HandleOCR", handleOCR)
}

// main is required by the Go Functions Framework.
func main() {}

// handleOCR serves POST /ocr and GET /healthz.
func handleOCR(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of the pipeline.
	once.Do(func() {
		var ocrInstance *services.OCRFunction
		ocrInstance, initErr = services.NewOCRService(context.Background())
		if initErr == nil {
			router = httpapi.NewRouter(ocrInstance, slog.Default())
		}
	})
	if initErr != nil {
		slog.Error("Critical: OCR service initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}
