package services

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/ocr"
	"github.com/Lllllllleong/documentocr/internal/render"
	"gopkg.in/yaml.v3"
)

// PipelineConfig is the process-wide configuration of the OCR pipeline. It is loaded once
// at start-up and never changes while requests are in flight.
type PipelineConfig struct {
	TargetDPI          int           `yaml:"targetDpi"`
	MaxDPI             int           `yaml:"maxDpi"`
	MaxConcurrency     int           `yaml:"maxConcurrency"`
	PerPageTimeout     time.Duration `yaml:"perPageTimeout"`
	RecognitionTimeout time.Duration `yaml:"recognitionTimeout"`
	RetryDelay         time.Duration `yaml:"retryDelay"`
	Languages          []string      `yaml:"languages"`
	MaxDocumentBytes   int64         `yaml:"maxDocumentBytes"`
	MaxPages           int           `yaml:"maxPages"`
	MaxPagePixels      int64         `yaml:"maxPagePixels"`
	RenderTimeout      time.Duration `yaml:"renderTimeout"`
	PageSegMode        int           `yaml:"pageSegMode"`
	TempDir            string        `yaml:"tempDir"`
	LogLevel           string        `yaml:"logLevel"`
}

// DefaultPipelineConfig returns the built-in defaults. 200 DPI is the accuracy sweet spot
// for Tesseract on printed documents.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TargetDPI:          200,
		MaxDPI:             600,
		MaxConcurrency:     runtime.NumCPU(),
		PerPageTimeout:     90 * time.Second,
		RecognitionTimeout: 30 * time.Second,
		RetryDelay:         250 * time.Millisecond,
		Languages:          []string{"eng"},
		MaxDocumentBytes:   100 << 20,
		MaxPages:           500,
		MaxPagePixels:      60_000_000,
		RenderTimeout:      60 * time.Second,
		PageSegMode:        6,
		LogLevel:           "info",
	}
}

// LoadPipelineConfig starts from the defaults, applies the YAML file named by
// OCR_CONFIG_FILE when set, then the OCR_* environment variables.
func LoadPipelineConfig() (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if path := gcp.GetEnv("OCR_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return PipelineConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return PipelineConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.TargetDPI = gcp.GetEnvInt("OCR_TARGET_DPI", cfg.TargetDPI)
	cfg.MaxDPI = gcp.GetEnvInt("OCR_MAX_DPI", cfg.MaxDPI)
	cfg.MaxConcurrency = gcp.GetEnvInt("OCR_MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.PerPageTimeout = gcp.GetEnvDuration("OCR_PER_PAGE_TIMEOUT", cfg.PerPageTimeout)
	cfg.RecognitionTimeout = gcp.GetEnvDuration("OCR_RECOGNITION_TIMEOUT", cfg.RecognitionTimeout)
	cfg.RetryDelay = gcp.GetEnvDuration("OCR_RETRY_DELAY", cfg.RetryDelay)
	cfg.Languages = gcp.GetEnvList("OCR_LANGUAGES", cfg.Languages)
	cfg.MaxDocumentBytes = gcp.GetEnvInt64("OCR_MAX_DOCUMENT_BYTES", cfg.MaxDocumentBytes)
	cfg.MaxPages = gcp.GetEnvInt("OCR_MAX_PAGES", cfg.MaxPages)
	cfg.MaxPagePixels = gcp.GetEnvInt64("OCR_MAX_PAGE_PIXELS", cfg.MaxPagePixels)
	cfg.RenderTimeout = gcp.GetEnvDuration("OCR_RENDER_TIMEOUT", cfg.RenderTimeout)
	cfg.PageSegMode = gcp.GetEnvInt("OCR_PAGE_SEG_MODE", cfg.PageSegMode)
	cfg.TempDir = gcp.GetEnv("OCR_TEMP_DIR", cfg.TempDir)
	cfg.LogLevel = gcp.GetEnv("OCR_LOG_LEVEL", cfg.LogLevel)

	cfg.normalize()
	return cfg, nil
}

// normalize replaces unusable values with defaults.
func (c *PipelineConfig) normalize() {
	def := DefaultPipelineConfig()
	if c.TargetDPI <= 0 {
		c.TargetDPI = def.TargetDPI
	}
	if c.MaxDPI <= 0 {
		c.MaxDPI = def.MaxDPI
	}
	if c.MaxDPI < c.TargetDPI {
		c.MaxDPI = c.TargetDPI
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.PerPageTimeout <= 0 {
		c.PerPageTimeout = def.PerPageTimeout
	}
	if c.RecognitionTimeout <= 0 {
		c.RecognitionTimeout = def.RecognitionTimeout
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if len(c.Languages) == 0 {
		c.Languages = def.Languages
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = def.MaxDocumentBytes
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.MaxPagePixels <= 0 {
		c.MaxPagePixels = def.MaxPagePixels
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = def.RenderTimeout
	}
	if c.PageSegMode <= 0 {
		c.PageSegMode = def.PageSegMode
	}
}

// Level parses LogLevel, defaulting to info.
func (c PipelineConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// RenderConfig derives the page renderer settings.
func (c PipelineConfig) RenderConfig(logger *slog.Logger) render.Config {
	return render.Config{
		MaxPages:      c.MaxPages,
		MaxPagePixels: c.MaxPagePixels,
		RenderTimeout: c.RenderTimeout,
		TempDir:       c.TempDir,
		Logger:        logger,
	}
}

// OCRConfig derives the recognizer settings.
func (c PipelineConfig) OCRConfig(logger *slog.Logger) ocr.Config {
	return ocr.Config{
		Languages:   c.Languages,
		PageSegMode: c.PageSegMode,
		Binary:      gcp.GetEnv("TESSERACT_BINARY", ""),
		Logger:      logger,
	}
}

// NewPipelineFromConfig wires the pdfcpu/pdftoppm renderer and the Tesseract recognizer
// into a DocumentPipeline.
func NewPipelineFromConfig(cfg PipelineConfig, logger *slog.Logger) *DocumentPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	renderCfg := cfg.RenderConfig(logger)
	renderCfg.Rasterizer = &render.Pdftoppm{Binary: gcp.GetEnv("PDFTOPPM_BINARY", "")}
	return NewDocumentPipeline(cfg, render.New(renderCfg), ocr.New(cfg.OCRConfig(logger)), logger)
}
