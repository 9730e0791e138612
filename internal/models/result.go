package models

import (
	"encoding/json"
	"math"
	"time"
)

// PageStatus is the terminal state of one page.
type PageStatus string

const (
	StatusExtracted  PageStatus = "Extracted"
	StatusRecognized PageStatus = "Recognized"
	StatusFailed     PageStatus = "Failed"
)

// OverallStatus summarizes a whole document.
type OverallStatus string

const (
	OverallSuccess        OverallStatus = "Success"
	OverallPartialSuccess OverallStatus = "PartialSuccess"
	OverallFailure        OverallStatus = "Failure"
)

// PageOutcome is the result of one page. It can only be built through the
// ExtractedOutcome, RecognizedOutcome and FailedOutcome constructors, so a Failed
// outcome never carries text or confidence.
type PageOutcome struct {
	index      int
	status     PageStatus
	text       string
	confidence float64
	err        error

	// Attempts counts recognition calls made for the page.
	Attempts int
	Elapsed  time.Duration
}

// ExtractedOutcome records a page resolved from its embedded text layer.
func ExtractedOutcome(index int, text string) PageOutcome {
	return PageOutcome{index: index, status: StatusExtracted, text: text}
}

// RecognizedOutcome records a page resolved by OCR. Confidence is clamped into [0, 1].
func RecognizedOutcome(index int, text string, confidence float64) PageOutcome {
	return PageOutcome{index: index, status: StatusRecognized, text: text, confidence: ClampConfidence(confidence)}
}

// FailedOutcome records a page that produced no text.
func FailedOutcome(index int, err error) PageOutcome {
	return PageOutcome{index: index, status: StatusFailed, err: err}
}

func (o PageOutcome) Index() int         { return o.index }
func (o PageOutcome) Status() PageStatus { return o.status }
func (o PageOutcome) Text() string       { return o.text }
func (o PageOutcome) Err() error         { return o.err }

// Confidence returns the OCR confidence; ok is false unless the page was Recognized.
func (o PageOutcome) Confidence() (float64, bool) {
	if o.status != StatusRecognized {
		return 0, false
	}
	return o.confidence, true
}

// ErrorKind returns the failure classification, empty unless the page Failed.
func (o PageOutcome) ErrorKind() ErrorKind {
	if o.status != StatusFailed {
		return ""
	}
	return ErrorKindOf(o.err)
}

// Succeeded reports whether the page yielded text (possibly empty).
func (o PageOutcome) Succeeded() bool {
	return o.status == StatusExtracted || o.status == StatusRecognized
}

type pageOutcomeJSON struct {
	Index      int        `json:"index"`
	Status     PageStatus `json:"status"`
	Text       *string    `json:"text,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  ErrorKind  `json:"errorKind,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	ElapsedMs  int64      `json:"elapsedMs"`
}

func (o PageOutcome) MarshalJSON() ([]byte, error) {
	out := pageOutcomeJSON{
		Index:     o.index,
		Status:    o.status,
		Attempts:  o.Attempts,
		ElapsedMs: o.Elapsed.Milliseconds(),
	}
	switch o.status {
	case StatusExtracted:
		text := o.text
		out.Text = &text
	case StatusRecognized:
		text, conf := o.text, o.confidence
		out.Text = &text
		out.Confidence = &conf
	case StatusFailed:
		if o.err != nil {
			out.Error = o.err.Error()
		}
		out.ErrorKind = o.ErrorKind()
	}
	return json.Marshal(out)
}

// DocumentResult is the ordered, index-aligned result of a document.
type DocumentResult struct {
	Pages   []PageOutcome
	Text    string
	Elapsed time.Duration
}

// Status derives the overall status from the page statuses.
func (r *DocumentResult) Status() OverallStatus {
	return OverallStatusOf(r.Pages)
}

// OverallStatusOf is Success when every page succeeded, Failure when none did (or there
// are no pages) and PartialSuccess otherwise.
func OverallStatusOf(pages []PageOutcome) OverallStatus {
	succeeded := 0
	for _, p := range pages {
		if p.Succeeded() {
			succeeded++
		}
	}
	switch {
	case len(pages) == 0 || succeeded == 0:
		return OverallFailure
	case succeeded == len(pages):
		return OverallSuccess
	default:
		return OverallPartialSuccess
	}
}

// FailedPages returns the indices of failed pages in order.
func (r *DocumentResult) FailedPages() []int {
	var failed []int
	for _, p := range r.Pages {
		if p.Status() == StatusFailed {
			failed = append(failed, p.Index())
		}
	}
	return failed
}

func (r *DocumentResult) MarshalJSON() ([]byte, error) {
	pages := r.Pages
	if pages == nil {
		pages = []PageOutcome{}
	}
	return json.Marshal(struct {
		OverallStatus OverallStatus `json:"overallStatus"`
		PageCount     int           `json:"pageCount"`
		Pages         []PageOutcome `json:"pages"`
		Text          string        `json:"text"`
		ElapsedMs     int64         `json:"elapsedMs"`
	}{
		OverallStatus: r.Status(),
		PageCount:     len(pages),
		Pages:         pages,
		Text:          r.Text,
		ElapsedMs:     r.Elapsed.Milliseconds(),
	})
}

// ClampConfidence forces a confidence value into [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
