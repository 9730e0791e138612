package models

// These structs define the JSON payloads exchanged with the OCR functions.

// OCRRequest is the JSON input of the OCR HTTP function when the document lives in
// Cloud Storage. Multipart uploads are mapped onto the same fields.
type OCRRequest struct {
	GCSUri        string   `json:"gcsUri"`
	LanguageHints []string `json:"languageHints,omitempty"`
	ForceOCR      bool     `json:"forceOcr,omitempty"`
	TargetDPI     int      `json:"targetDpi,omitempty"`
}

// ErrorResponse is returned for requests that produced no page results at all.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

// ResultSummary is the compact form of a DocumentResult handed to downstream workflows.
type ResultSummary struct {
	RunID         string        `json:"runId"`
	Source        string        `json:"source"`
	FileHash      string        `json:"fileHash"`
	OverallStatus OverallStatus `json:"overallStatus"`
	PageCount     int           `json:"pageCount"`
	FailedPages   []int         `json:"failedPages,omitempty"`
	TextBytes     int           `json:"textBytes"`
	ElapsedMs     int64         `json:"elapsedMs"`
}
