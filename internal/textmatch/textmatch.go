// Package textmatch scores detected OCR text against the text a caller
// expected to find in the image.
package textmatch

import (
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"

	"github.com/anime-shed/image-analyser-go/pkg/models"
)

// Normalize lowercases s and collapses every whitespace run to one space
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Compare computes the edit distance between the normalized texts. The
// character error rate is relative to the expected text; the match score is
// relative to the longer of the two.
func Compare(expected, detected string) models.TextMatch {
	want := Normalize(expected)
	got := Normalize(detected)

	dist := levenshtein.Distance(want, got)
	wantLen := utf8.RuneCountInString(want)
	longest := wantLen
	if n := utf8.RuneCountInString(got); n > longest {
		longest = n
	}

	match := models.TextMatch{
		ExpectedText: expected,
		DetectedText: detected,
		Distance:     dist,
		MatchScore:   1,
	}

	if longest > 0 {
		match.MatchScore = 1 - float64(dist)/float64(longest)
	}
	switch {
	case wantLen > 0:
		match.CER = float64(dist) / float64(wantLen)
	case dist > 0:
		match.CER = 1
	}

	return match
}
