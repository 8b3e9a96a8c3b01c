package specs

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"review-insights/internal/domain"
)

// HasText matches reviews with a non-blank body in either text column.
func HasText() Specification[domain.Review] {
	return New(func(_ context.Context, r domain.Review) bool { return r.Text() != "" })
}

// NotAnalyzed matches reviews without a sentiment.
func NotAnalyzed() Specification[domain.Review] {
	return New(func(_ context.Context, r domain.Review) bool { return !r.Analyzed() })
}

// TextLongerThan matches texts with more than n characters after trimming.
func TextLongerThan(n int) Specification[string] {
	return New(func(_ context.Context, s string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s)) > n
	})
}

var englishMarkers = map[string]bool{
	"the": true, "and": true, "was": true, "were": true, "with": true, "very": true,
	"food": true, "great": true, "good": true, "service": true, "place": true, "is": true,
}

var spanishMarkers = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "que": true, "muy": true,
	"con": true, "comida": true, "lugar": true, "atención": true, "es": true, "y": true,
}

// LooksEnglish is a cheap stopword vote used to decide whether a text is
// worth checking with an English-only lexicon.
func LooksEnglish() Specification[string] {
	return New(func(_ context.Context, s string) bool {
		en, es := 0, 0
		for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if englishMarkers[w] {
				en++
			}
			if spanishMarkers[w] {
				es++
			}
		}
		return en > 0 && en > es
	})
}
