package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/documentocr/internal/models"
)

// AssembleResult orders the page outcomes and joins their text. Outcomes must cover
// [0, pageCount) exactly once; a gap or a duplicate is a pipeline defect reported as
// *models.InternalError.
func AssembleResult(pageCount int, outcomes []models.PageOutcome, elapsed time.Duration) (*models.DocumentResult, error) {
	pages := make([]models.PageOutcome, len(outcomes))
	copy(pages, outcomes)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index() < pages[j].Index() })

	for i, p := range pages {
		switch {
		case p.Index() < 0 || p.Index() >= pageCount:
			return nil, &models.InternalError{Detail: fmt.Sprintf("outcome for page %d outside [0, %d)", p.Index(), pageCount)}
		case i > 0 && p.Index() == pages[i-1].Index():
			return nil, &models.InternalError{Detail: fmt.Sprintf("duplicate outcome for page %d", p.Index())}
		case p.Index() != i:
			return nil, &models.InternalError{Detail: fmt.Sprintf("missing outcome for page %d", i)}
		}
	}
	if len(pages) != pageCount {
		return nil, &models.InternalError{Detail: fmt.Sprintf("missing outcome for page %d", len(pages))}
	}

	return &models.DocumentResult{
		Pages:   pages,
		Text:    JoinPageText(pages),
		Elapsed: elapsed,
	}, nil
}

// PageMarker is the heading that precedes the text of page index (0-based) in the
// concatenated document text.
func PageMarker(index int) string {
	return fmt.Sprintf("--- Page %d ---", index+1)
}

// JoinPageText concatenates the pages in order, each under its marker. Failed pages keep
// their marker with an empty body.
func JoinPageText(pages []models.PageOutcome) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(PageMarker(p.Index()))
		sb.WriteByte('\n')
		sb.WriteString(p.Text())
	}
	return sb.String()
}
