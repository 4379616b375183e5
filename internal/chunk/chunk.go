// Package chunk splits document text at paragraph and sentence breaks.
package chunk

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// DefaultTargetWords is the chunk size used when callers pass zero.
const DefaultTargetWords = 300

// Block is one top-level markdown block rendered back to plain text.
type Block struct {
	Text    string
	Heading bool
}

var parser = goldmark.New().Parser()

// Blocks parses text as markdown and returns its top-level blocks. Plain
// text parses as a sequence of paragraphs.
func Blocks(text string) []Block {
	src := []byte(text)
	root := parser.Parse(gtext.NewReader(src))

	var blocks []Block
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		s := strings.TrimSpace(blockText(n, src))
		if s == "" {
			continue
		}
		blocks = append(blocks, Block{Text: s, Heading: n.Kind() == ast.KindHeading})
	}
	return blocks
}

func blockText(n ast.Node, src []byte) string {
	if n.Type() != ast.TypeBlock {
		return ""
	}
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		s := strings.TrimSpace(string(lines.Value(src)))
		if h, ok := n.(*ast.Heading); ok {
			s = strings.Repeat("#", h.Level) + " " + s
		}
		return s
	}

	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := strings.TrimSpace(blockText(c, src)); t != "" {
			parts = append(parts, t)
		}
	}
	s := strings.Join(parts, "\n")
	if n.Kind() == ast.KindListItem && s != "" {
		s = "- " + s
	}
	return s
}

// Split breaks text into chunks of roughly targetWords words. Headings
// open a new chunk; otherwise chunks break between blocks, and blocks
// longer than the target break between sentences.
func Split(text string, targetWords int) []string {
	if targetWords <= 0 {
		targetWords = DefaultTargetWords
	}

	var (
		chunks []string
		cur    []string
		words  int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
		}
		cur, words = nil, 0
	}

	for _, b := range Blocks(text) {
		if b.Heading && words > 0 {
			flush()
		}
		n := WordCount(b.Text)
		switch {
		case n > targetWords:
			flush()
			pieces := packSentences(Sentences(b.Text), targetWords)
			for i, piece := range pieces {
				if i < len(pieces)-1 {
					chunks = append(chunks, piece)
					continue
				}
				// The tail stays open so following blocks can join it.
				cur, words = []string{piece}, WordCount(piece)
			}
		case words+n > targetWords && words > 0:
			flush()
			cur, words = []string{b.Text}, n
		default:
			cur = append(cur, b.Text)
			words += n
		}
	}
	flush()
	return chunks
}

func packSentences(sentences []string, targetWords int) []string {
	var (
		out   []string
		cur   []string
		words int
	)
	for _, s := range sentences {
		n := WordCount(s)
		if words+n > targetWords && words > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, words = nil, 0
		}
		cur = append(cur, s)
		words += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// ByChars splits text into pieces of at most maxChars bytes, preferring
// sentence breaks. A single sentence longer than maxChars is cut at the
// last space before the limit.
func ByChars(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var (
		out []string
		cur strings.Builder
	)
	emit := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, s := range Sentences(text) {
		for len(s) > maxChars {
			emit()
			cut := hardCut(s, maxChars)
			out = append(out, strings.TrimSpace(s[:cut]))
			s = strings.TrimSpace(s[cut:])
		}
		if s == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(s) > maxChars {
			emit()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	emit()
	return out
}

// hardCut returns a cut index <= max that falls on a space when possible
// and never splits a UTF-8 sequence.
func hardCut(s string, max int) int {
	if i := strings.LastIndexByte(s[:max], ' '); i > 0 {
		return i
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
