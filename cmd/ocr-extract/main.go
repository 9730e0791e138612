// Command ocr-extract runs the OCR pipeline locally, either over files given on the
// command line or as an HTTP server exposing the same API as the deployed function.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/httpapi"
	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/Lllllllleong/documentocr/internal/services"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(gcp.NewJSONLogger(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "ocr-extract",
		Usage: "extract the text of PDF and image documents",
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "extract text from one or more documents",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "language codes, e.g. eng+fra (default from OCR_LANGUAGES)"},
					&cli.BoolFlag{Name: "force-ocr", Usage: "ignore embedded text layers and OCR every page"},
					&cli.IntFlag{Name: "dpi", Usage: "rendering resolution (default from OCR_TARGET_DPI)"},
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "pages processed in parallel"},
					&cli.DurationFlag{Name: "page-timeout", Usage: "time budget per page"},
					&cli.BoolFlag{Name: "json", Usage: "print the full result as JSON instead of text"},
				},
				Action: extract,
			},
			{
				Name:  "serve",
				Usage: "serve the OCR HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: ":8080", EnvVars: []string{"OCR_LISTEN_ADDR"}, Usage: "listen address"},
				},
				Action: serve,
			},
		},
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("ocr-extract failed", "error", err)
		os.Exit(1)
	}
}

func newPipeline() (*services.DocumentPipeline, error) {
	cfg, err := services.LoadPipelineConfig()
	if err != nil {
		return nil, err
	}
	return services.NewPipelineFromConfig(cfg, slog.Default()), nil
}

func extract(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one FILE is required", 2)
	}
	pipeline, err := newPipeline()
	if err != nil {
		return err
	}
	opts := models.Options{
		ForceOCR:       c.Bool("force-ocr"),
		LanguageHints:  gcp.SplitList(c.String("lang")),
		TargetDPI:      c.Int("dpi"),
		MaxConcurrency: c.Int("concurrency"),
		PerPageTimeout: c.Duration("page-timeout"),
	}

	var failed int
	for _, path := range c.Args().Slice() {
		result, err := extractFile(c.Context, pipeline, path, opts)
		if err != nil {
			if errors.Is(err, models.ErrCancelled) {
				return err
			}
			slog.Error("Failed to process document", "path", path, "error", err)
			failed++
			continue
		}
		if err := printResult(c.App.Writer, path, result, c.Bool("json")); err != nil {
			return err
		}
		if result.Status() == models.OverallFailure {
			failed++
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d documents failed", failed, c.NArg()), 1)
	}
	return nil
}

func extractFile(ctx context.Context, pipeline *services.DocumentPipeline, path string, opts models.Options) (*models.DocumentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := models.NewDocument(data, "", path)
	if err != nil {
		return nil, err
	}
	return pipeline.Process(ctx, doc, opts)
}

func printResult(w io.Writer, path string, result *models.DocumentResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Path   string                 `json:"path"`
			Result *models.DocumentResult `json:"result"`
		}{path, result})
	}
	_, err := fmt.Fprintf(w, "%s\n", result.Text)
	return err
}

func serve(c *cli.Context) error {
	ocrInstance, err := services.NewOCRService(c.Context)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           httpapi.NewRouter(ocrInstance, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving OCR API.", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-c.Context.Done():
	}
	slog.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
