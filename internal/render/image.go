package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/Lllllllleong/documentocr/internal/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageSource is a single raster image treated as a one-page document.
type imageSource struct {
	cfg    Config
	data   []byte
	width  int
	height int
}

func openImage(cfg Config, doc *models.Document) (*imageSource, error) {
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, &models.DocumentError{Reason: "failed to read image header", Err: err}
	}
	if imgCfg.Width <= 0 || imgCfg.Height <= 0 {
		return nil, &models.DocumentError{Reason: fmt.Sprintf("%s image has no pixels", format)}
	}
	return &imageSource{cfg: cfg, data: doc.Data, width: imgCfg.Width, height: imgCfg.Height}, nil
}

func (s *imageSource) PageCount() int { return 1 }

func (s *imageSource) Close() error { return nil }

// Render decodes the image and converts it to 8-bit grayscale. Images carry their own
// resolution, so opts.TargetDPI is only recorded as a hint for the recognizer.
func (s *imageSource) Render(ctx context.Context, index int, opts models.RenderOptions) (*models.Page, error) {
	if index != 0 {
		return nil, outOfRange(index, 1)
	}
	if px := float64(s.width) * float64(s.height); overCeiling(px, s.cfg.MaxPagePixels) {
		return nil, &models.RenderError{
			Page: index,
			Kind: models.KindRenderCeiling,
			Err:  fmt.Errorf("image is %dx%d, %g pixels (max %d)", s.width, s.height, px, s.cfg.MaxPagePixels),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(s.data))
	if err != nil {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderCorrupt, Err: fmt.Errorf("failed to decode image: %w", err)}
	}
	gray := toGray(src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, &models.RenderError{Page: index, Kind: models.KindRenderCorrupt, Err: fmt.Errorf("failed to encode grayscale image: %w", err)}
	}
	b := gray.Bounds()
	return &models.Page{
		Index: index,
		Image: &models.RasterImage{
			Data:        buf.Bytes(),
			Width:       b.Dx(),
			Height:      b.Dy(),
			PixelFormat: models.PixelGray8,
			DPI:         opts.TargetDPI,
		},
	}, nil
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	// Transparent regions become white paper rather than black ink.
	draw.Draw(gray, gray.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Over)
	return gray
}
