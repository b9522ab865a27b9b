package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello\n\tWORLD  "))
	assert.Equal(t, "", Normalize(" \n "))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name             string
		expected         string
		detected         string
		expectedDistance int
		expectedScore    float64
		expectedCER      float64
	}{
		{"identical after normalization", "Hello World", "hello\nworld", 0, 1, 0},
		{"one substitution", "hello", "hallo", 1, 0.8, 0.2},
		{"detected longer", "cat", "cats", 1, 0.75, 1.0 / 3},
		{"nothing detected", "cat", "", 3, 0, 1},
		{"nothing expected", "", "dog", 3, 0, 1},
		{"both empty", "", "", 0, 1, 0},
		{"multibyte runes", "café", "cafe", 1, 0.75, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compare(tt.expected, tt.detected)
			assert.Equal(t, tt.expectedDistance, m.Distance)
			assert.InDelta(t, tt.expectedScore, m.MatchScore, 1e-9)
			assert.InDelta(t, tt.expectedCER, m.CER, 1e-9)
			assert.Equal(t, tt.expected, m.ExpectedText)
			assert.Equal(t, tt.detected, m.DetectedText)
		})
	}
}
