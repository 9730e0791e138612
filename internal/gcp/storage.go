package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

var (
	// ErrObjectNotFound is returned when the source object does not exist or is not readable.
	ErrObjectNotFound = errors.New("source object not found")
	// ErrObjectTooLarge is returned when the source object exceeds the configured size limit.
	ErrObjectTooLarge = errors.New("source object too large")
	// ErrInvalidURI is returned for anything that is not gs://bucket/object.
	ErrInvalidURI = errors.New("invalid gs:// URI")
)

// Object is a fully downloaded Cloud Storage object.
type Object struct {
	Bucket      string
	Name        string
	ContentType string
	Data        []byte
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object name.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

// FetchObject streams a Cloud Storage object into memory, refusing objects larger than
// maxBytes.
func FetchObject(ctx context.Context, client *storage.Client, bucket, object string, maxBytes int64) (*Object, error) {
	gcsReader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, classifyStorageError(fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err))
	}
	defer gcsReader.Close()

	if maxBytes > 0 && gcsReader.Attrs.Size > maxBytes {
		return nil, fmt.Errorf("%w: gs://%s/%s is %d bytes (max %d)", ErrObjectTooLarge, bucket, object, gcsReader.Attrs.Size, maxBytes)
	}

	var r io.Reader = gcsReader
	if maxBytes > 0 {
		r = io.LimitReader(gcsReader, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: gs://%s/%s exceeds %d bytes", ErrObjectTooLarge, bucket, object, maxBytes)
	}

	return &Object{
		Bucket:      bucket,
		Name:        object,
		ContentType: gcsReader.Attrs.ContentType,
		Data:        data,
	}, nil
}

// classifyStorageError folds "missing" and "forbidden" responses into ErrObjectNotFound so
// callers can report them as client errors.
func classifyStorageError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	return err
}
