package content

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkChars is the target chunk size for ingestion.
const DefaultChunkChars = 1000

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker splits documents into chunks of at most MaxChars characters.
// Paragraphs are packed together; a paragraph longer than MaxChars is cut
// at the last whitespace before the limit.
type Chunker struct {
	MaxChars int
}

// Split returns the chunks of text in reading order.
func (c Chunker) Split(text string) []string {
	limit := c.MaxChars
	if limit <= 0 {
		limit = DefaultChunkChars
	}

	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, para := range paragraphBreak.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitLong(para, limit) {
			if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+utf8.RuneCountInString(piece) > limit {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return out
}

func splitLong(s string, limit int) []string {
	var out []string
	for utf8.RuneCountInString(s) > limit {
		cut := byteOffset(s, limit)
		if ws := strings.LastIndexFunc(s[:cut], unicode.IsSpace); ws > 0 {
			cut = ws
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// byteOffset returns the byte index of the n-th rune of s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
