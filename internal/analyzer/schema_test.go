package analyzer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

func analysisJSON(id string, mutate func(m map[string]any)) map[string]any {
	m := map[string]any{
		"review_id":                    id,
		"language":                     "es",
		"sentiment":                    "negative",
		"overall_score":                0.2,
		"overall_sentiment_confidence": 0.9,
		"gap_to_five":                  true,
		"gap_reasons":                  []string{"demora"},
		"critical_flags":               []string{"higiene"},
		"executive_summary":            "Demora larga y baño sucio.",
		"action_items":                 []string{"Revisar limpieza"},
		"staff_mentions": []map[string]any{
			{"detected_name": "Juan", "role": "mozo", "sentiment": "negative", "evidence_span": "Juan nos ignoró"},
		},
		"aspects": []map[string]any{
			{"aspect": "servicio", "sub_aspect": "velocidad", "sentiment": "negative",
				"evidence_spans": []string{"tardaron una hora"}, "severity": 2, "gap_to_five_contrib": 0.5},
		},
	}
	if mutate != nil {
		mutate(m)
	}
	return m
}

func doc(t *testing.T, analyses ...map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"analyses": analyses})
	require.NoError(t, err)
	return string(b)
}

func TestParseBatchValid(t *testing.T) {
	got, err := ParseBatch(doc(t, analysisJSON("r1", nil)), []string{"r1", "r2"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := domain.ReviewAnalysis{
		ReviewID:                   "r1",
		Language:                   "es",
		Sentiment:                  domain.SentimentNegative,
		OverallScore:               0.2,
		OverallSentimentConfidence: 0.9,
		GapToFive:                  true,
		GapReasons:                 []string{"demora"},
		CriticalFlags:              []domain.CriticalFlag{domain.FlagHigiene},
		ExecutiveSummary:           "Demora larga y baño sucio.",
		ActionItems:                []string{"Revisar limpieza"},
		StaffMentions:              []domain.StaffMention{{DetectedName: "Juan", Role: "mozo", Sentiment: domain.SentimentNegative, EvidenceSpan: "Juan nos ignoró"}},
		Aspects: []domain.Aspect{{Aspect: "servicio", SubAspect: "velocidad", Sentiment: domain.SentimentNegative,
			EvidenceSpans: []string{"tardaron una hora"}, Severity: 2, GapToFiveContrib: 0.5}},
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBatchNormalizesNullArrays(t *testing.T) {
	content := doc(t, analysisJSON("r1", func(m map[string]any) {
		m["gap_reasons"] = nil
		m["action_items"] = nil
		m["critical_flags"] = nil
		m["staff_mentions"] = nil
		m["aspects"] = nil
	}))
	got, err := ParseBatch(content, []string{"r1"})
	require.NoError(t, err)
	assert.NotNil(t, got[0].GapReasons)
	assert.NotNil(t, got[0].ActionItems)
	assert.NotNil(t, got[0].CriticalFlags)
	assert.NotNil(t, got[0].StaffMentions)
	assert.NotNil(t, got[0].Aspects)
}

func TestParseBatchRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", "Lo siento, no puedo", "not a valid batch document"},
		{"missing analyses", `{}`, "missing analyses"},
		{"unknown top level field", `{"analyses":[],"debug":1}`, "not a valid batch document"},
		{"unknown review", doc(t, analysisJSON("zzz", nil)), "not part of the batch"},
		{"duplicate review", doc(t, analysisJSON("r1", nil), analysisJSON("r1", nil)), "appears twice"},
		{"bad sentiment", doc(t, analysisJSON("r1", func(m map[string]any) { m["sentiment"] = "mixed" })), "sentiment"},
		{"score above one", doc(t, analysisJSON("r1", func(m map[string]any) { m["overall_score"] = 1.5 })), "overall_score"},
		{"missing confidence", doc(t, analysisJSON("r1", func(m map[string]any) { delete(m, "overall_sentiment_confidence") })), "overall_sentiment_confidence is required"},
		{"unknown flag", doc(t, analysisJSON("r1", func(m map[string]any) { m["critical_flags"] = []string{"ruido"} })), "not a known flag"},
		{"summary too long", doc(t, analysisJSON("r1", func(m map[string]any) { m["executive_summary"] = strings.Repeat("á", 261) })), "max 260"},
		{"severity out of range", doc(t, analysisJSON("r1", func(m map[string]any) {
			m["aspects"] = []map[string]any{{"aspect": "comida", "sub_aspect": "sabor", "sentiment": "positive",
				"evidence_spans": []string{}, "severity": 4, "gap_to_five_contrib": 0}}
		})), "severity"},
		{"fractional severity", doc(t, analysisJSON("r1", func(m map[string]any) {
			m["aspects"] = []map[string]any{{"aspect": "comida", "sub_aspect": "sabor", "sentiment": "positive",
				"evidence_spans": []string{}, "severity": 1.5, "gap_to_five_contrib": 0}}
		})), "severity"},
		{"contribution negative", doc(t, analysisJSON("r1", func(m map[string]any) {
			m["aspects"] = []map[string]any{{"aspect": "comida", "sub_aspect": "sabor", "sentiment": "positive",
				"evidence_spans": []string{}, "severity": 1, "gap_to_five_contrib": -0.1}}
		})), "gap_to_five_contrib"},
		{"staff sentiment", doc(t, analysisJSON("r1", func(m map[string]any) {
			m["staff_mentions"] = []map[string]any{{"detected_name": "Ana", "role": "", "sentiment": "great", "evidence_span": ""}}
		})), "staff_mentions[0].sentiment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBatch(tt.content, []string{"r1", "r2"})
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errs.Is(err, errs.ErrValidation))
			assert.False(t, errs.IsRetryable(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseBatchOneBadItemRejectsAll(t *testing.T) {
	content := doc(t, analysisJSON("r1", nil), analysisJSON("r2", func(m map[string]any) { m["overall_score"] = -1 }))
	got, err := ParseBatch(content, []string{"r1", "r2"})
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestEmbeddedSchemaIsValidJSON(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal(BatchSchema(), &m))
	assert.Equal(t, false, m["additionalProperties"])
}

func TestGeminiSchemaConversion(t *testing.T) {
	s, err := GeminiSchema()
	require.NoError(t, err)
	assert.Equal(t, genai.TypeObject, s.Type)
	items := s.Properties["analyses"].Items
	require.NotNil(t, items)
	assert.Contains(t, items.Required, "executive_summary")
	assert.Equal(t, []string{"positive", "neutral", "negative"}, items.Properties["sentiment"].Enum)
	sev := items.Properties["aspects"].Items.Properties["severity"]
	require.NotNil(t, sev.Minimum)
	assert.Equal(t, 1.0, *sev.Minimum)
	assert.Equal(t, 3.0, *sev.Maximum)
	assert.Equal(t, items.Required, items.PropertyOrdering)
}
