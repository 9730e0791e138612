// Package ocr recognizes the text of page rasters with Tesseract. The default build shells
// out to the tesseract CLI; building with -tags ocr links libtesseract through gosseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Lllllllleong/documentocr/internal/models"
)

// Config controls the Tesseract invocation.
type Config struct {
	// Languages used when a request carries no hints (default ["eng"]).
	Languages []string
	// PageSegMode is tesseract's --psm (default 6, a single uniform block of text).
	PageSegMode int
	// Binary is the tesseract executable for the CLI engine (default "tesseract").
	Binary string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Languages) == 0 {
		c.Languages = []string{"eng"}
	}
	if c.PageSegMode <= 0 {
		c.PageSegMode = 6
	}
	if c.Binary == "" {
		c.Binary = "tesseract"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tesseract is a stateless recognizer. Every call gets its own engine instance, so a
// single Tesseract may be shared by all page workers.
type Tesseract struct {
	cfg Config
}

// New creates a Tesseract recognizer.
func New(cfg Config) *Tesseract {
	cfg.defaults()
	return &Tesseract{cfg: cfg}
}

// Recognize runs OCR over img. Language hints are tesseract codes such as "eng" or
// "chi_sim"; an empty list selects the configured default languages.
func (t *Tesseract) Recognize(ctx context.Context, img *models.RasterImage, languageHints []string) (models.RecognizedText, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 || len(img.Data) == 0 {
		return models.RecognizedText{}, &models.RecognitionError{
			Kind: models.KindRecognitionInput,
			Err:  errors.New("image has no pixels"),
		}
	}
	langs, err := ResolveLanguages(languageHints, t.cfg.Languages)
	if err != nil {
		return models.RecognizedText{}, err
	}
	if ctx.Err() != nil {
		return models.RecognizedText{}, contextError(ctx)
	}

	text, err := t.run(ctx, img, langs)
	if err != nil {
		return models.RecognizedText{}, err
	}
	text.Confidence = models.ClampConfidence(text.Confidence)
	t.cfg.Logger.Debug("Page recognized.", "languages", strings.Join(langs, "+"), "chars", len(text.Text), "confidence", text.Confidence)
	return text, nil
}

// languagePattern accepts traineddata names: a language code with optional variants
// (chi_sim_vert) or a script model (script/Latin).
var languagePattern = regexp.MustCompile(`^([a-z]{3}(_[a-z]+)*|script/[A-Za-z_]+)$`)

const scriptPrefix = "script/"

// ResolveLanguages lowercases and de-duplicates hints, keeping their order. Script model
// names keep their case. Empty hints resolve to defaults. Unknown code shapes are rejected
// as malformed input.
func ResolveLanguages(hints, defaults []string) ([]string, error) {
	if len(hints) == 0 {
		hints = defaults
	}
	seen := make(map[string]bool, len(hints))
	langs := make([]string, 0, len(hints))
	for _, h := range hints {
		code := canonicalLanguage(h)
		if code == "" || seen[code] {
			continue
		}
		if !languagePattern.MatchString(code) {
			return nil, &models.RecognitionError{
				Kind: models.KindRecognitionInput,
				Err:  fmt.Errorf("invalid language code %q", h),
			}
		}
		seen[code] = true
		langs = append(langs, code)
	}
	if len(langs) == 0 {
		return []string{"eng"}, nil
	}
	return langs, nil
}

func canonicalLanguage(hint string) string {
	code := strings.TrimSpace(hint)
	if len(code) > len(scriptPrefix) && strings.EqualFold(code[:len(scriptPrefix)], scriptPrefix) {
		return scriptPrefix + code[len(scriptPrefix):]
	}
	return strings.ToLower(code)
}

func contextError(ctx context.Context) *models.RecognitionError {
	return &models.RecognitionError{
		Kind:      models.KindRecognitionTimeout,
		Transient: true,
		Err:       fmt.Errorf("recognition interrupted: %w", ctx.Err()),
	}
}

// NormalizeOutput trims tesseract's plain-text output: form feeds go, trailing blanks are
// stripped from every line and runs of blank lines collapse to one.
func NormalizeOutput(text string) string {
	text = strings.ReplaceAll(text, "\f", "")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
