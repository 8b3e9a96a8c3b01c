package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "review-insights/pkg/errors"
)

func TestRenderSystemPrompt(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	out, err := m.Render(AnalysisSystem, SystemData{
		CriticalFlags:   []string{"higiene", "fraude"},
		MaxSummaryChars: 260,
		Vocabulary:      Vocabulary,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "higiene, fraude")
	assert.Contains(t, out, "260 caracteres")
	assert.Contains(t, out, "SERVICIO")
	assert.Contains(t, out, "- porciones: abundante")
	assert.False(t, strings.HasPrefix(out, "\n"))
}

func TestRenderUserPrompt(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	out, err := m.Render(AnalysisUser, UserData{Count: 2, Payload: `{"reviews":[]}`})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Analizá las 2 reseñas"))
	assert.True(t, strings.HasSuffix(out, `{"reviews":[]}`))
}

func TestRenderUnknownTemplate(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	_, err = m.Render("nope", nil)
	assert.True(t, errs.Is(err, errs.ErrValidation))
}
