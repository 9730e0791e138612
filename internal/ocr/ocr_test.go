package ocr

import (
	"context"
	"testing"

	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLanguages(t *testing.T) {
	tests := []struct {
		name     string
		hints    []string
		defaults []string
		want     []string
	}{
		{"defaults when empty", nil, []string{"deu"}, []string{"deu"}},
		{"keeps order", []string{"fra", "eng"}, []string{"deu"}, []string{"fra", "eng"}},
		{"dedupes and lowercases", []string{"ENG", " eng ", "chi_sim"}, nil, []string{"eng", "chi_sim"}},
		{"blank hints fall back to eng", []string{" ", ""}, nil, []string{"eng"}},
		{"vertical variants", []string{"chi_sim_vert", "chi_tra_vert"}, nil, []string{"chi_sim_vert", "chi_tra_vert"}},
		{"script models keep case", []string{"Script/Latin", "script/Han_vert"}, nil, []string{"script/Latin", "script/Han_vert"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveLanguages(tt.hints, tt.defaults)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLanguages_Invalid(t *testing.T) {
	for _, hint := range []string{"english", "en", "eng;rm", "../eng", "eng_", "script/", "script/../eng", "script/Latin+eng"} {
		_, err := ResolveLanguages([]string{hint}, nil)
		var recErr *models.RecognitionError
		require.ErrorAs(t, err, &recErr, hint)
		assert.Equal(t, models.KindRecognitionInput, recErr.Kind)
		assert.False(t, recErr.Transient)
	}
}

func TestRecognize_RejectsEmptyImage(t *testing.T) {
	tess := New(Config{Binary: "/nonexistent/tesseract"})
	images := []*models.RasterImage{
		nil,
		{Data: []byte{1}, Width: 0, Height: 10},
		{Data: []byte{1}, Width: 10, Height: 0},
		{Width: 10, Height: 10},
	}
	for _, img := range images {
		_, err := tess.Recognize(context.Background(), img, nil)
		var recErr *models.RecognitionError
		require.ErrorAs(t, err, &recErr)
		assert.Equal(t, models.KindRecognitionInput, recErr.Kind)
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	tess := New(Config{Binary: "/nonexistent/tesseract"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tess.Recognize(ctx, &models.RasterImage{Data: []byte{1}, Width: 1, Height: 1}, nil)
	var recErr *models.RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, models.KindRecognitionTimeout, recErr.Kind)
	assert.True(t, recErr.Transient)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "line one\n\nline two", NormalizeOutput("line one  \n\n\n\nline two\n\f"))
	assert.Empty(t, NormalizeOutput(" \n\f\n"))
}
