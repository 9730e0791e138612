// Package httpapi exposes the OCR pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentocr/internal/gcp"
	"github.com/Lllllllleong/documentocr/internal/models"
	"github.com/Lllllllleong/documentocr/internal/ocr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// StatusClientClosedRequest is reported when the caller went away before the result was
// ready.
const StatusClientClosedRequest = 499

const requestIDHeader = "X-Request-Id"

// multipartOverhead is the allowance for form fields and part headers on top of the
// document itself.
const multipartOverhead = 1 << 20

const (
	maxJSONBody   = 1 << 20
	maxFormMemory = 32 << 20
)

// Processor is the OCR service behind the HTTP API.
type Processor interface {
	Process(ctx context.Context, doc *models.Document, opts models.Options) (*models.DocumentResult, error)
	ProcessGCS(ctx context.Context, req *models.OCRRequest) (*models.DocumentResult, error)
	MaxDocumentBytes() int64
}

type handler struct {
	proc   Processor
	logger *slog.Logger
}

type ctxKey struct{}

// NewRouter returns the HTTP API:
//
//	POST /ocr      multipart upload (file, lang, force_ocr, dpi) or JSON {"gcsUri", ...}
//	GET  /healthz  liveness probe
func NewRouter(proc Processor, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{proc: proc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Get("/healthz", h.handleHealth)
	r.Post("/ocr", h.handleOCR)
	return r
}

// requestID tags every request with a UUID, reusing a well-formed incoming X-Request-Id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleOCR(w http.ResponseWriter, r *http.Request) {
	logCtx := h.logger.With("requestId", RequestID(r.Context()))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		result *models.DocumentResult
		err    error
	)
	switch mediaType {
	case "multipart/form-data":
		var (
			doc  *models.Document
			opts models.Options
		)
		doc, opts, err = h.parseUpload(w, r)
		if err != nil {
			h.writeError(w, r, logCtx, err)
			return
		}
		logCtx = logCtx.With("filename", doc.Filename)
		result, err = h.proc.Process(r.Context(), doc, opts)
	case "application/json", "":
		var req *models.OCRRequest
		req, err = parseJSONRequest(r)
		if err != nil {
			h.writeError(w, r, logCtx, err)
			return
		}
		logCtx = logCtx.With("gcsUri", req.GCSUri)
		result, err = h.proc.ProcessGCS(r.Context(), req)
	default:
		err = badRequest("unsupported content type %q", mediaType)
	}
	if err != nil {
		h.writeError(w, r, logCtx, err)
		return
	}

	logCtx.Info("OCR request complete.", "overallStatus", result.Status(), "pageCount", len(result.Pages))
	writeJSON(w, http.StatusOK, result)
}

// badRequestError marks malformed request parameters.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (h *handler) parseUpload(w http.ResponseWriter, r *http.Request) (*models.Document, models.Options, error) {
	maxBytes := h.proc.MaxDocumentBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if isTooLarge(err) {
			return nil, models.Options{}, fmt.Errorf("%w: upload exceeds %d bytes", gcp.ErrObjectTooLarge, maxBytes)
		}
		return nil, models.Options{}, badRequest("failed to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, models.Options{}, badRequest("missing form file %q", "file")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, models.Options{}, badRequest("failed to read upload: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, models.Options{}, fmt.Errorf("%w: upload exceeds %d bytes", gcp.ErrObjectTooLarge, maxBytes)
	}

	langs, err := validateLanguages(gcp.SplitList(r.FormValue("lang")))
	if err != nil {
		return nil, models.Options{}, err
	}
	opts := models.Options{LanguageHints: langs}
	if v := strings.TrimSpace(r.FormValue("force_ocr")); v != "" {
		if opts.ForceOCR, err = strconv.ParseBool(v); err != nil {
			return nil, models.Options{}, badRequest("invalid force_ocr %q", v)
		}
	}
	if v := strings.TrimSpace(r.FormValue("dpi")); v != "" {
		if opts.TargetDPI, err = strconv.Atoi(v); err != nil || opts.TargetDPI <= 0 {
			return nil, models.Options{}, badRequest("invalid dpi %q", v)
		}
	}

	doc, err := models.NewDocument(data, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		return nil, models.Options{}, err
	}
	return doc, opts, nil
}

func parseJSONRequest(r *http.Request) (*models.OCRRequest, error) {
	var req models.OCRRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		return nil, badRequest("could not parse JSON: %v", err)
	}
	if req.GCSUri == "" {
		return nil, badRequest("gcsUri is required")
	}
	if req.TargetDPI < 0 {
		return nil, badRequest("invalid targetDpi %d", req.TargetDPI)
	}
	langs, err := validateLanguages(req.LanguageHints)
	if err != nil {
		return nil, err
	}
	req.LanguageHints = langs
	return &req, nil
}

// validateLanguages rejects language codes the engine would refuse, so a bad hint fails
// the request instead of every OCR page. No hints stays no hints.
func validateLanguages(hints []string) ([]string, error) {
	if len(hints) == 0 {
		return nil, nil
	}
	langs, err := ocr.ResolveLanguages(hints, nil)
	if err != nil {
		return nil, badRequest("invalid lang: %v", err)
	}
	return langs, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// statusOf maps request-level failures onto HTTP status codes and stable kinds.
func statusOf(err error) (int, string) {
	var (
		badReq *badRequestError
		docErr *models.DocumentError
	)
	switch {
	case errors.As(err, &badReq), errors.Is(err, gcp.ErrInvalidURI):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, gcp.ErrObjectNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, gcp.ErrObjectTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.As(err, &docErr):
		return http.StatusUnprocessableEntity, "document_error"
	case errors.Is(err, models.ErrCancelled):
		return StatusClientClosedRequest, "cancelled"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, logCtx *slog.Logger, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError {
		logCtx.Error("OCR request failed.", "status", status, "error", err)
	} else {
		logCtx.Warn("OCR request rejected.", "status", status, "error", err)
	}
	writeJSON(w, status, models.ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
