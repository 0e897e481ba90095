// Package language implements the lightweight language heuristic used to tag
// guest conversations. It is intentionally small: the concierge only needs to
// pick the right knowledge-base column, not perform real language
// identification.
package language

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Supported returns the closed set of languages the concierge can answer in.
// The first element is the fallback.
func Supported() []language.Tag {
	return []language.Tag{language.English, language.Malay, language.Chinese}
}

// malayStopwords are high-frequency Malay function words and hostel-domain
// terms that rarely appear in English guest messages. Matched on whole-word
// boundaries after lowercasing.
var malayStopwords = []string{
	"apa", "saya", "boleh", "tidak", "ada", "bilik", "berapa", "harga",
	"macam", "mana", "nak", "tolong", "terima", "kasih", "selamat",
	"pagi", "malam", "tandas", "esok",
}

// Detect classifies text into one of the supported languages.
//
// Han-script code points are checked first: a single CJK rune is an
// unambiguous signal. Otherwise the text is scanned for Malay stopwords.
// Empty or signal-free text defaults to English.
func Detect(text string) language.Tag {
	if text == "" {
		return language.English
	}

	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return language.Chinese
		}
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for _, stop := range malayStopwords {
			if w == stop {
				return language.Malay
			}
		}
	}

	return language.English
}
