package models

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies the container type of an input document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatWEBP Format = "webp"
	FormatGIF  Format = "gif"
)

// IsImage reports whether the format is a single raster image.
func (f Format) IsImage() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatTIFF, FormatBMP, FormatWEBP, FormatGIF:
		return true
	}
	return false
}

// Document is the caller-owned input of a pipeline run. The pipeline only reads Data.
type Document struct {
	Data     []byte
	Format   Format
	Filename string
}

// NewDocument builds a Document, detecting its format from the content, the declared
// MIME type and the filename, in that order.
func NewDocument(data []byte, declaredMIME, filename string) (*Document, error) {
	format, err := DetectFormat(data, declaredMIME, filename)
	if err != nil {
		return nil, err
	}
	return &Document{Data: data, Format: format, Filename: filename}, nil
}

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

var mimeFormats = map[string]Format{
	"application/pdf": FormatPDF,
	"image/png":       FormatPNG,
	"image/jpeg":      FormatJPEG,
	"image/jpg":       FormatJPEG,
	"image/tiff":      FormatTIFF,
	"image/bmp":       FormatBMP,
	"image/x-ms-bmp":  FormatBMP,
	"image/webp":      FormatWEBP,
	"image/gif":       FormatGIF,
}

var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,
	".gif":  FormatGIF,
}

// DetectFormat resolves the document format. Magic bytes win over the declared MIME type,
// which wins over the filename extension.
func DetectFormat(data []byte, declaredMIME, filename string) (Format, error) {
	if len(data) == 0 {
		return "", &DocumentError{Reason: "empty document"}
	}
	if bytes.HasPrefix(data, tiffLittleEndian) || bytes.HasPrefix(data, tiffBigEndian) {
		return FormatTIFF, nil
	}
	sniffed := http.DetectContentType(data)
	if f, ok := mimeFormats[mediaType(sniffed)]; ok {
		return f, nil
	}
	if f, ok := mimeFormats[mediaType(declaredMIME)]; ok {
		return f, nil
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f, nil
	}
	return "", &DocumentError{Reason: fmt.Sprintf("unsupported document type %q", sniffed)}
}

func mediaType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// PixelFormat describes the pixel layout of a RasterImage.
type PixelFormat string

const (
	PixelGray8 PixelFormat = "gray8"
	PixelRGBA  PixelFormat = "rgba"
)

// RasterImage is a PNG-encoded page rendering.
type RasterImage struct {
	Data        []byte
	Width       int
	Height      int
	PixelFormat PixelFormat
	DPI         int
}

// Page is the per-request, per-page unit of work. Exactly one of EmbeddedText and Image
// is set.
type Page struct {
	Index        int
	EmbeddedText string
	Image        *RasterImage
}

// HasEmbeddedText reports whether the page was resolved from its text layer.
func (p *Page) HasEmbeddedText() bool {
	return p.Image == nil
}

// RenderOptions are the per-page rendering parameters.
type RenderOptions struct {
	TargetDPI int
	ForceOCR  bool
}

// RecognizedText is the output of one OCR call.
type RecognizedText struct {
	Text       string
	Confidence float64
}

// Options are the per-request pipeline options. Zero values select the process defaults.
type Options struct {
	ForceOCR       bool
	LanguageHints  []string
	TargetDPI      int
	MaxConcurrency int
	PerPageTimeout time.Duration
}
