package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksMarkdown(t *testing.T) {
	md := "# Title\n\nFirst paragraph here.\n\n- one\n- two\n\n## Next\n\nSecond paragraph."
	blocks := Blocks(md)
	require.Len(t, blocks, 5)
	assert.Equal(t, Block{Text: "# Title", Heading: true}, blocks[0])
	assert.Equal(t, "First paragraph here.", blocks[1].Text)
	assert.Equal(t, "- one\n- two", blocks[2].Text)
	assert.Equal(t, Block{Text: "## Next", Heading: true}, blocks[3])
	assert.Equal(t, "Second paragraph.", blocks[4].Text)
}

func TestSplitHeadingsStartChunks(t *testing.T) {
	md := "# A\n\nalpha beta gamma.\n\n# B\n\ndelta epsilon."
	chunks := Split(md, 300)
	require.Len(t, chunks, 2)
	assert.Equal(t, "# A\n\nalpha beta gamma.", chunks[0])
	assert.Equal(t, "# B\n\ndelta epsilon.", chunks[1])
}

func TestSplitPacksParagraphs(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("word ", 40))
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := Split(text, 100)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, 80, WordCount(c))
	}
}

func TestSplitLongParagraphAtSentences(t *testing.T) {
	sentence := "This sentence has exactly seven words."
	text := strings.TrimSpace(strings.Repeat(sentence+" ", 10))

	chunks := Split(text, 21)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "words."), "chunk %q must end at a sentence break", c)
		assert.LessOrEqual(t, WordCount(c), 21)
	}
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split("", 100))
	assert.Empty(t, Split("   \n\n  ", 100))
}

func TestSentences(t *testing.T) {
	got := Sentences("Ship it. Really?! Use tools, e.g. grep. \"Quoted.\" Done")
	assert.Equal(t, []string{"Ship it.", "Really?!", "Use tools, e.g. grep.", "\"Quoted.\"", "Done"}, got)

	assert.Equal(t, []string{"no punctuation", "second para"}, Sentences("no punctuation\n\nsecond para"))
	assert.Equal(t, []string{"version 1.2 ships"}, Sentences("version 1.2 ships"))
}

func TestByChars(t *testing.T) {
	assert.Equal(t, []string{"short"}, ByChars("short", 100))
	assert.Nil(t, ByChars("", 100))

	text := "Alpha beta. Gamma delta. Epsilon zeta."
	got := ByChars(text, 25)
	assert.Equal(t, []string{"Alpha beta. Gamma delta.", "Epsilon zeta."}, got)

	long := strings.Repeat("x", 30) + " tail"
	for _, piece := range ByChars(long, 12) {
		assert.LessOrEqual(t, len(piece), 12)
	}
}
