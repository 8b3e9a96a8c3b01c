package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights/internal/analyzer"
	"review-insights/internal/domain"
)

type fakeRunner struct {
	diag   analyzer.Diagnosis
	runs   []analyzer.Input
	resets [][]string
	err    error
}

func (f *fakeRunner) Diagnose(_ context.Context, placeID string) (*analyzer.Diagnosis, error) {
	d := f.diag
	d.ExternalPlaceID = placeID
	return &d, f.err
}

func (f *fakeRunner) Run(_ context.Context, in analyzer.Input) (*analyzer.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.runs = append(f.runs, in)
	return &analyzer.Summary{OK: true, RunID: "run-1", Analyzed: 2, TotalReviewsFound: 2, Batches: 1,
		ProcessedReviews: []analyzer.ProcessedReview{{ReviewID: "r1", Sentiment: domain.Sentiment("positive"), OverallScore: 0.8}}}, nil
}

func (f *fakeRunner) ResetAnalysis(_ context.Context, _ string, ids []string) (int64, error) {
	f.resets = append(f.resets, ids)
	return 4, nil
}

type fakeReviews []domain.LatestReview

func (f fakeReviews) LatestReviewsCtx(_ context.Context, limit int) ([]domain.LatestReview, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func execute(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	closed := false
	e.Close = func() error { closed = true; return nil }
	root := newRootCmd(func(context.Context) (*env, error) { return e, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	assert.True(t, closed, "env closed")
	return out.String(), err
}

func TestAnalyzeCmd(t *testing.T) {
	r := &fakeRunner{diag: analyzer.Diagnosis{PlaceName: "Cafe Uno", Total: 10, Unanalyzed: 3,
		Sample: []domain.ReviewSample{{ID: "r1", Provider: "google", TextLength: 120}}}}
	out, err := execute(t, &env{Analyzer: r}, "analyze", "p1", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Cafe Uno (p1): 10 reviews, 3 unanalyzed")
	assert.Contains(t, out, "run run-1: analyzed 2 of 2 in 1 batches (0 failed)")
	require.Len(t, r.runs, 1)
	assert.Equal(t, analyzer.Input{ExternalPlaceID: "p1", Limit: 5}, r.runs[0])
}

func TestAnalyzeCmdNothingPending(t *testing.T) {
	r := &fakeRunner{diag: analyzer.Diagnosis{PlaceName: "Cafe Uno", Total: 10}}
	out, err := execute(t, &env{Analyzer: r}, "analyze", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to analyze")
	assert.Empty(t, r.runs)
}

func TestAnalyzeCmdJSON(t *testing.T) {
	r := &fakeRunner{diag: analyzer.Diagnosis{Unanalyzed: 1}}
	out, err := execute(t, &env{Analyzer: r}, "analyze", "p1", "--json")
	require.NoError(t, err)
	var got struct {
		Diagnosis analyzer.Diagnosis `json:"diagnosis"`
		Summary   analyzer.Summary   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "p1", got.Diagnosis.ExternalPlaceID)
	assert.Equal(t, "run-1", got.Summary.RunID)
}

func TestAnalyzeCmdErrors(t *testing.T) {
	_, err := execute(t, &env{Analyzer: &fakeRunner{err: errors.New("unknown place")}}, "analyze", "p1")
	assert.EqualError(t, err, "unknown place")

	root := newRootCmd(func(context.Context) (*env, error) { t.Fatal("opened without args"); return nil, nil })
	root.SetArgs([]string{"analyze"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestReanalyzeCmd(t *testing.T) {
	r := &fakeRunner{}
	out, err := execute(t, &env{Analyzer: r}, "reanalyze", "p1", "--review-id", "r1", "--review-id", "r2", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "reset 4 reviews")
	assert.Equal(t, [][]string{{"r1", "r2"}}, r.resets)
	assert.Equal(t, []analyzer.Input{{ExternalPlaceID: "p1", Limit: 2, ReviewIDs: []string{"r1", "r2"}}}, r.runs)
}

func TestCheckCmd(t *testing.T) {
	rating, score := 4.0, 0.82
	label := "positive"
	posted := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reviews := fakeReviews{
		{ID: "r1", Provider: "google", RatingValue: &rating, ReviewText: "The food was great and the service was very good",
			Sentiment: &label, OverallScore: &score, PostedAt: &posted},
		{ID: "r2", Provider: "tripadvisor", ReviewText: "La comida es muy rica y el lugar es lindo"},
		{ID: "r3", Provider: "google"},
	}
	var labeled []string
	e := &env{Reviews: reviews, Label: func(text string) string { labeled = append(labeled, text); return "positive" }}

	out, err := execute(t, e, "check", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "r1  google      2025-03-01  rating 4.0  positive score 0.82")
	assert.Contains(t, out, "lexicon: positive")
	assert.Contains(t, out, "r2  tripadvisor -  rating -  pending  score -")
	assert.NotContains(t, out, "r3")
	assert.Len(t, labeled, 1, "only English text goes through the lexicon")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("  a\n\tb ", 10))
	assert.Equal(t, "ñandú...", preview("ñandú rápido", 5))
}
