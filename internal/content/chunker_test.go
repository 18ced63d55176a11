package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunker_PacksParagraphs(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\r\n\r\nThird one is a bit longer than the others."
	got := Chunker{MaxChars: 45}.Split(text)
	assert.Equal(t, []string{
		"First paragraph.\n\nSecond paragraph.",
		"Third one is a bit longer than the others.",
	}, got)
}

func TestChunker_SplitsLongParagraphAtWhitespace(t *testing.T) {
	words := strings.Repeat("ledger ", 50)
	got := Chunker{MaxChars: 30}.Split(words)
	assert.Greater(t, len(got), 1)
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 30)
		assert.False(t, strings.HasPrefix(c, " ") || strings.HasSuffix(c, " "))
		assert.NotContains(t, c, "ledgerledger")
	}
}

func TestChunker_HardSplitWithoutWhitespace(t *testing.T) {
	got := Chunker{MaxChars: 10}.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, got)
}

func TestChunker_EmptyInput(t *testing.T) {
	assert.Empty(t, Chunker{}.Split("  \n\n  "))
}
