package specs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"review-insights/internal/domain"
)

func TestNotAnalyzedWithText(t *testing.T) {
	ctx := context.Background()
	done := "positive"
	reviews := []domain.Review{
		{ID: "a", ReviewText: "Excelente"},
		{ID: "b", ReviewText: "   ", OriginalReviewText: "Great food"},
		{ID: "c", ReviewText: " ", OriginalReviewText: ""},
		{ID: "d", ReviewText: "Bien", Sentiment: &done},
	}

	match, rest := Partition(ctx, NotAnalyzed().And(HasText()), reviews)
	var got []string
	for _, r := range match {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Len(t, rest, 2)
}

func TestCancelledContextMatchesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, HasText().IsSatisfiedBy(ctx, domain.Review{ReviewText: "x"}))
	assert.False(t, HasText().Not().IsSatisfiedBy(ctx, domain.Review{}))
}

func TestOr(t *testing.T) {
	ctx := context.Background()
	s := HasText().Not().Or(NotAnalyzed())
	done := "negative"
	assert.True(t, s.IsSatisfiedBy(ctx, domain.Review{}))
	assert.True(t, s.IsSatisfiedBy(ctx, domain.Review{ReviewText: "ok"}))
	assert.False(t, s.IsSatisfiedBy(ctx, domain.Review{ReviewText: "ok", Sentiment: &done}))
}

func TestTextLongerThan(t *testing.T) {
	ctx := context.Background()
	assert.False(t, TextLongerThan(10).IsSatisfiedBy(ctx, "  muy rico  "))
	assert.True(t, TextLongerThan(10).IsSatisfiedBy(ctx, "muy rico todo"))
}

func TestLooksEnglish(t *testing.T) {
	ctx := context.Background()
	assert.True(t, LooksEnglish().IsSatisfiedBy(ctx, "The food was great and the service very friendly"))
	assert.False(t, LooksEnglish().IsSatisfiedBy(ctx, "La comida es muy rica y el lugar es lindo"))
	assert.False(t, LooksEnglish().IsSatisfiedBy(ctx, ""))
}
