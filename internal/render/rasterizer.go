package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Pdftoppm rasterizes single-page PDFs with poppler's pdftoppm, in grayscale PNG.
type Pdftoppm struct {
	// Binary defaults to "pdftoppm" resolved through PATH.
	Binary string
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath string, dpi int) ([]byte, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(pdfPath), "raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	binary := p.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	outRoot := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, binary,
		"-r", strconv.Itoa(dpi),
		"-gray",
		"-png",
		"-singlefile",
		pdfPath,
		outRoot)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pdftoppm aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outRoot + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	return data, nil
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
