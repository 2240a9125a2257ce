package curation

import (
	"strings"
	"unicode"
)

// tokenSet splits text into a set of lowercased word tokens. Token
// boundaries are any non letter/digit runes.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			set[b.String()] = true
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

// TokenSetSimilarity returns the Jaccard similarity (intersection/union)
// of the word-token sets of two texts.
func TokenSetSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	union := make(map[string]bool, len(setA)+len(setB))
	for tok := range setA {
		union[tok] = true
		if setB[tok] {
			intersection++
		}
	}
	for tok := range setB {
		union[tok] = true
	}
	if len(union) == 0 {
		return 0.0
	}
	return float64(intersection) / float64(len(union))
}

// negationMarkers are tokens that flip the effective polarity of a rule's
// phrasing even when the bullet kind matches.
var negationMarkers = map[string]bool{
	"never": true,
	"dont":  true,
	"don":   true,
	"avoid": true,
	"not":   true,
	"stop":  true,
}

// affirmationMarkers indicate positive phrasing.
var affirmationMarkers = map[string]bool{
	"always": true,
	"prefer": true,
	"use":    true,
	"do":     true,
	"ensure": true,
}

// hasMarker reports whether any token of the set appears in markers.
func hasMarker(tokens map[string]bool, markers map[string]bool) bool {
	for tok := range tokens {
		if markers[tok] {
			return true
		}
	}
	return false
}

// keywordOverlap returns intersection size divided by the smaller set size.
func keywordOverlap(a, b map[string]bool) float64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return 0
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
