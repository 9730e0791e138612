//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/otiai10/gosseract/v2"
)

type recognition struct {
	text models.RecognizedText
	err  error
}

// run recognizes img with a dedicated gosseract client. libtesseract calls cannot be
// interrupted, so on cancellation the call is abandoned and finishes in the background.
func (t *Tesseract) run(ctx context.Context, img *models.RasterImage, langs []string) (models.RecognizedText, error) {
	done := make(chan recognition, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- recognition{err: &models.RecognitionError{
					Kind:      models.KindRecognitionCrash,
					Transient: true,
					Err:       fmt.Errorf("tesseract panicked: %v", r),
				}}
			}
		}()
		text, err := t.recognizeWithClient(img, langs)
		done <- recognition{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return models.RecognizedText{}, contextError(ctx)
	case r := <-done:
		return r.text, r.err
	}
}

func (t *Tesseract) recognizeWithClient(img *models.RasterImage, langs []string) (models.RecognizedText, error) {
	c := gosseract.NewClient()
	defer c.Close()

	failure := func(step string, err error) (models.RecognizedText, error) {
		return models.RecognizedText{}, &models.RecognitionError{
			Kind: models.KindRecognitionFailure,
			Err:  fmt.Errorf("%s: %w", step, err),
		}
	}
	if err := c.SetImageFromBytes(img.Data); err != nil {
		return models.RecognizedText{}, &models.RecognitionError{
			Kind: models.KindRecognitionInput,
			Err:  fmt.Errorf("set image: %w", err),
		}
	}
	if err := c.SetLanguage(langs...); err != nil {
		return failure("set languages", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(t.cfg.PageSegMode)); err != nil {
		return failure("set page segmentation mode", err)
	}
	if img.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(img.DPI)); err != nil {
			return failure("set dpi", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return failure("recognize text", err)
	}
	return models.RecognizedText{Text: NormalizeOutput(text), Confidence: meanWordConfidence(c)}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100
	}
	return sum / float64(len(boxes))
}
