// Package sentiment wraps a local naive Bayes English sentiment model used
// by the CLI to cross-check model labels without calling the API.
package sentiment

import (
	"context"
	"fmt"

	cdipaoloSentiment "github.com/cdipaolo/sentiment"

	"review-insights/internal/domain/specs"
)

type Lexicon struct {
	model cdipaoloSentiment.Models
}

func New() (*Lexicon, error) {
	model, err := cdipaoloSentiment.Restore()
	if err != nil {
		return nil, fmt.Errorf("error restoring sentiment model: %w", err)
	}
	return &Lexicon{model: model}, nil
}

// Label returns "positive" or "negative" for English text.
func (l *Lexicon) Label(text string) string {
	if l.model.SentimentAnalysis(text, cdipaoloSentiment.English).Score == 1 {
		return "positive"
	}
	return "negative"
}

// LooksEnglish decides whether the English model applies to a review.
func LooksEnglish(text string) bool {
	return specs.LooksEnglish().IsSatisfiedBy(context.Background(), text)
}
