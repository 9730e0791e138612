package models

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by the pipeline when the caller withdrew the request.
// It wraps the context cause and is never accompanied by partial results.
var ErrCancelled = errors.New("document processing cancelled")

// ErrorKind is the stable classification carried by Failed page outcomes.
type ErrorKind string

const (
	KindRenderOutOfRange     ErrorKind = "render_out_of_range"
	KindRenderCorrupt        ErrorKind = "render_corrupt"
	KindRenderCeiling        ErrorKind = "render_ceiling_exceeded"
	KindRecognitionTimeout   ErrorKind = "recognition_timeout"
	KindRecognitionCrash     ErrorKind = "recognition_engine_crash"
	KindRecognitionFailure   ErrorKind = "recognition_engine_failure"
	KindRecognitionMalformed ErrorKind = "recognition_malformed_output"
	KindRecognitionInput     ErrorKind = "recognition_malformed_input"
	KindPageTimeout          ErrorKind = "page_timeout"
	KindUnknown              ErrorKind = "unknown"
)

// DocumentError means the input could not be opened, parsed or split into pages.
type DocumentError struct {
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document error: %s: %v", e.Reason, e.Err)
	}
	return "document error: " + e.Reason
}

func (e *DocumentError) Unwrap() error { return e.Err }

// RenderError means a single page could not be rasterized or read. It is never retried.
type RenderError struct {
	Page int
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %s: %v", e.Page, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// RecognitionError is an OCR engine failure on a single page. Transient errors are
// retried once by the page extractor.
type RecognitionError struct {
	Page      int
	Kind      ErrorKind
	Transient bool
	Err       error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognize page %d: %s: %v", e.Page, e.Kind, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// PageTimeoutError is recorded when a page exhausted its whole time budget.
type PageTimeoutError struct {
	Page  int
	Limit string
	Err   error
}

func (e *PageTimeoutError) Error() string {
	return fmt.Sprintf("page %d exceeded its time budget of %s: %v", e.Page, e.Limit, e.Err)
}

func (e *PageTimeoutError) Unwrap() error { return e.Err }

// InternalError signals a pipeline defect (outcome gap or duplicate), as opposed to bad input.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return "internal pipeline error: " + e.Detail
}

// IsTransient reports whether err is a recognition failure worth one more attempt.
func IsTransient(err error) bool {
	var recErr *RecognitionError
	return errors.As(err, &recErr) && recErr.Transient
}

// ErrorKindOf maps a page-level error onto its stable kind.
func ErrorKindOf(err error) ErrorKind {
	var (
		timeoutErr *PageTimeoutError
		renderErr  *RenderError
		recErr     *RecognitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &timeoutErr):
		return KindPageTimeout
	case errors.As(err, &renderErr):
		return renderErr.Kind
	case errors.As(err, &recErr):
		return recErr.Kind
	}
	return KindUnknown
}
