package ocr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentocr/internal/models"
)

// levelWord is the TSV row level of a single recognized word.
const levelWord = 5

type tsvColumns struct {
	level, block, par, line, conf, text int

	// width is the number of header columns.
	width int
}

// ParseTSV turns tesseract's TSV output into page text and a mean word confidence in
// [0, 1]. Lines are joined with "\n" and paragraphs separated by a blank line. A page
// without words yields empty text and zero confidence.
func ParseTSV(data []byte) (models.RecognizedText, error) {
	rows := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(rows) == 0 || strings.TrimSpace(rows[0]) == "" {
		return models.RecognizedText{}, errors.New("tsv output is empty")
	}
	cols, err := parseHeader(rows[0])
	if err != nil {
		return models.RecognizedText{}, err
	}

	var (
		sb        strings.Builder
		lineWords []string
		confSum   float64
		confCount int
	)
	prevBlock, prevPar, prevLine := -1, -1, -1
	flushLine := func() {
		if len(lineWords) == 0 {
			return
		}
		sb.WriteString(strings.Join(lineWords, " "))
		lineWords = lineWords[:0]
	}

	for n, row := range rows[1:] {
		if strings.TrimSpace(row) == "" {
			continue
		}
		fields := strings.Split(row, "\t")
		if len(fields) < cols.width-1 {
			return models.RecognizedText{}, fmt.Errorf("tsv row %d has %d fields, want %d", n+2, len(fields), cols.width)
		}
		level, err := strconv.Atoi(fields[cols.level])
		if err != nil {
			return models.RecognizedText{}, fmt.Errorf("tsv row %d: bad level: %w", n+2, err)
		}
		if level != levelWord {
			continue
		}
		word := ""
		if cols.text < len(fields) {
			word = strings.TrimSpace(fields[cols.text])
		}
		if word == "" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[cols.conf], 64)
		if err != nil {
			return models.RecognizedText{}, fmt.Errorf("tsv row %d: bad confidence: %w", n+2, err)
		}
		block, errB := strconv.Atoi(fields[cols.block])
		par, errP := strconv.Atoi(fields[cols.par])
		line, errL := strconv.Atoi(fields[cols.line])
		if err := errors.Join(errB, errP, errL); err != nil {
			return models.RecognizedText{}, fmt.Errorf("tsv row %d: bad layout numbers: %w", n+2, err)
		}

		switch {
		case prevBlock < 0:
		case block != prevBlock || par != prevPar:
			flushLine()
			sb.WriteString("\n\n")
		case line != prevLine:
			flushLine()
			sb.WriteByte('\n')
		}
		prevBlock, prevPar, prevLine = block, par, line

		lineWords = append(lineWords, word)
		if conf >= 0 {
			confSum += conf
			confCount++
		}
	}
	flushLine()

	result := models.RecognizedText{Text: strings.TrimSpace(sb.String())}
	if confCount > 0 {
		result.Confidence = models.ClampConfidence(confSum / float64(confCount) / 100)
	}
	return result, nil
}

func parseHeader(header string) (tsvColumns, error) {
	names := strings.Split(strings.TrimSpace(header), "\t")
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	cols := tsvColumns{width: len(names)}
	for name, dst := range map[string]*int{
		"level":     &cols.level,
		"block_num": &cols.block,
		"par_num":   &cols.par,
		"line_num":  &cols.line,
		"conf":      &cols.conf,
		"text":      &cols.text,
	} {
		i, ok := index[name]
		if !ok {
			return tsvColumns{}, fmt.Errorf("tsv header lacks column %q", name)
		}
		*dst = i
	}
	return cols, nil
}
