package gcp

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://scans/2024/invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, "scans", bucket)
	assert.Equal(t, "2024/invoice.pdf", object)

	for _, bad := range []string{"", "scans/invoice.pdf", "gs://", "gs://scans", "gs://scans/", "https://x/y"} {
		_, _, err := ParseGCSURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestClassifyStorageError(t *testing.T) {
	assert.ErrorIs(t, classifyStorageError(storage.ErrObjectNotExist), ErrObjectNotFound)
	assert.ErrorIs(t, classifyStorageError(&googleapi.Error{Code: 403}), ErrObjectNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, classifyStorageError(other))
	assert.NotErrorIs(t, classifyStorageError(&googleapi.Error{Code: 500}), ErrObjectNotFound)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("OCR_TEST_INT", "12")
	t.Setenv("OCR_TEST_BAD_INT", "twelve")
	t.Setenv("OCR_TEST_DURATION", "1m30s")
	t.Setenv("OCR_TEST_LIST", "eng+fra, deu")

	assert.Equal(t, 12, GetEnvInt("OCR_TEST_INT", 3))
	assert.Equal(t, 3, GetEnvInt("OCR_TEST_BAD_INT", 3))
	assert.Equal(t, 3, GetEnvInt("OCR_TEST_MISSING", 3))
	assert.Equal(t, int64(12), GetEnvInt64("OCR_TEST_INT", 1))
	assert.Equal(t, 90*time.Second, GetEnvDuration("OCR_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"eng", "fra", "deu"}, GetEnvList("OCR_TEST_LIST", nil))
	assert.Equal(t, []string{"eng"}, GetEnvList("OCR_TEST_MISSING", []string{"eng"}))
	assert.Equal(t, "fallback", GetEnv("OCR_TEST_MISSING", "fallback"))
}
