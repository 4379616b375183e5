package chunk

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]bool{
	"e.g.": true, "i.e.": true, "etc.": true, "vs.": true, "cf.": true,
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "st.": true,
}

// Sentences splits text into sentences at terminal punctuation followed by
// whitespace, and at blank lines.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	emit := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			emit(i)
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Swallow runs like "?!" and closing quotes or brackets.
		j := i + 1
		for j < len(runes) && strings.ContainsRune(".!?\"')]”’", runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			continue
		}
		if r == '.' && isAbbreviation(runes[start:j]) {
			continue
		}
		emit(j)
		i = j - 1
	}
	emit(len(runes))
	return out
}

func isAbbreviation(sentence []rune) bool {
	fields := strings.Fields(string(sentence))
	if len(fields) == 0 {
		return false
	}
	return abbreviations[strings.ToLower(fields[len(fields)-1])]
}
