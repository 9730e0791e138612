//go:build !ocr

package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
)

// run pipes the PNG into `tesseract stdin stdout ... tsv` and parses the TSV report.
func (t *Tesseract) run(ctx context.Context, img *models.RasterImage, langs []string) (models.RecognizedText, error) {
	args := []string{"stdin", "stdout",
		"-l", strings.Join(langs, "+"),
		"--psm", strconv.Itoa(t.cfg.PageSegMode),
	}
	if img.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(img.DPI))
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	cmd.Stdin = bytes.NewReader(img.Data)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return models.RecognizedText{}, contextError(ctx)
		}
		detail := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			return models.RecognizedText{}, &models.RecognitionError{
				Kind:      models.KindRecognitionCrash,
				Transient: true,
				Err:       fmt.Errorf("tesseract terminated: %w: %s", err, detail),
			}
		}
		return models.RecognizedText{}, &models.RecognitionError{
			Kind: models.KindRecognitionFailure,
			Err:  fmt.Errorf("tesseract failed: %w: %s", err, detail),
		}
	}

	text, err := ParseTSV(stdout.Bytes())
	if err != nil {
		return models.RecognizedText{}, &models.RecognitionError{Kind: models.KindRecognitionMalformed, Err: err}
	}
	return text, nil
}
