package glossary

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// CountFrequency counts occurrences of term in text on stemmed word
// boundaries, so "widgets" counts toward "Widget".
func CountFrequency(text, term string) int {
	needle := stems(term)
	if len(needle) == 0 {
		return 0
	}
	hay := stems(text)

	count := 0
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, s := range needle {
			if hay[i+j] != s {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

func stems(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		stemmed, err := snowball.Stem(w, "english", true)
		if err != nil || stemmed == "" {
			stemmed = w
		}
		out = append(out, stemmed)
	}
	return out
}
