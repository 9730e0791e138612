package render

import (
	"encoding/hex"
	"strings"
	stdunicode "unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextFromContentStream pulls the shown strings out of a decoded PDF page content stream.
// It understands literal and hex string operands of Tj, TJ, ' and ", and turns text
// positioning operators into line breaks or spaces. Font encodings are not resolved, so
// pages using composite fonts come out garbled and fail PrintableRatio.
func TextFromContentStream(content []byte) string {
	var (
		sb       strings.Builder
		operands []string
	)
	newline := func() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '(':
			s, next := readLiteralString(content, i)
			operands = append(operands, s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			i += 2
		case c == '<':
			s, next := readHexString(content, i)
			operands = append(operands, s)
			i = next
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case isDelimiter(c):
			i++
		default:
			start := i
			for i < len(content) && !isDelimiter(content[i]) && content[i] != '(' && content[i] != '<' && content[i] != '%' {
				i++
			}
			switch string(content[start:i]) {
			case "Tj", "TJ":
				sb.WriteString(decodeTextString(strings.Join(operands, "")))
			case "'", "\"":
				newline()
				sb.WriteString(decodeTextString(strings.Join(operands, "")))
			case "T*", "ET":
				newline()
			case "Td", "TD", "Tm":
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			}
			if isOperator(content[start:i]) {
				operands = operands[:0]
			}
		}
	}
	return sb.String()
}

// decodeTextString maps raw string bytes to UTF-8: UTF-16BE when the string carries a
// byte order mark, Windows-1252 (the usual simple-font encoding) otherwise.
func decodeTextString(raw string) string {
	if raw == "" {
		return ""
	}
	var dec *encoding.Decoder
	if strings.HasPrefix(raw, "\xfe\xff") {
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	} else {
		dec = charmap.Windows1252.NewDecoder()
	}
	out, err := dec.String(raw)
	if err != nil {
		return raw
	}
	return out
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '[', ']', '{', '}', '/', '>':
		return true
	}
	return false
}

// isOperator distinguishes operators from numeric operands.
func isOperator(tok []byte) bool {
	if len(tok) == 0 {
		return false
	}
	c := tok[0]
	return !(c >= '0' && c <= '9' || c == '-' || c == '+' || c == '.')
}

// readLiteralString decodes a (...) string starting at content[start], handling nested
// parentheses and escape sequences. It returns the decoded string and the index after the
// closing parenthesis.
func readLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch {
		case c == '\\' && i+1 < len(content):
			i++
			i = decodeEscape(content, i, &sb)
			continue
		case c == '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
		case c == ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String(), i
}

// decodeEscape writes the character escaped at content[i] and returns the next index.
func decodeEscape(content []byte, i int, sb *strings.Builder) int {
	switch c := content[i]; c {
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b', 'f':
	case '\r', '\n':
		// Line continuation.
		if c == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			i++
		}
	default:
		if c >= '0' && c <= '7' {
			val := 0
			n := 0
			for n < 3 && i < len(content) && content[i] >= '0' && content[i] <= '7' {
				val = val*8 + int(content[i]-'0')
				i++
				n++
			}
			sb.WriteByte(byte(val))
			return i
		}
		sb.WriteByte(c)
	}
	return i + 1
}

func readHexString(content []byte, start int) (string, int) {
	end := start + 1
	for end < len(content) && content[end] != '>' {
		end++
	}
	digits := make([]byte, 0, end-start)
	for _, c := range content[start+1 : end] {
		if !stdunicode.IsSpace(rune(c)) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	decoded, err := hex.DecodeString(string(digits))
	if err != nil {
		return "", end + 1
	}
	return string(decoded), end + 1
}

// NormalizeText collapses horizontal whitespace runs, trims every line and drops blank
// lines beyond the first in a row.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// PrintableRatio is the share of printable runes in text. Private-use code points, the
// replacement character and control characters other than whitespace count as garbage.
func PrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		switch {
		case r >= 0xE000 && r <= 0xF8FF, r == stdunicode.ReplacementChar:
		case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		case stdunicode.IsPrint(r) || stdunicode.IsSpace(r):
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}
