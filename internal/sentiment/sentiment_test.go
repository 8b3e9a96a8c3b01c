package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksEnglish(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"The food was great and the service very friendly", true},
		{"La comida muy rica pero la atención fue lenta", false},
		{"Excelente!!!", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksEnglish(tt.text), tt.text)
	}
}

func TestLabel(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	assert.Equal(t, "positive", l.Label("I loved this place, the food was wonderful and delicious"))
	assert.Equal(t, "negative", l.Label("Terrible, awful service. Worst dinner ever, disgusting and rude"))
}
