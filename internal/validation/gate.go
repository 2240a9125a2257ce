package validation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Signal phrase lists are deliberately conservative: word-boundary-anchored
// phrases only, so "fixed the" never matches inside "prefixed theme".
var successPhrases = []string{
	"fixed the",
	"successfully",
	"resolved",
	"works now",
	"passed",
}

var failurePhrases = []string{
	"failed to",
	"crashed",
	"doesn't work",
	"does not work",
	"broke",
	"regression",
}

var (
	successPattern = compileSignalPattern(successPhrases)
	failurePattern = compileSignalPattern(failurePhrases)
)

// compileSignalPattern builds one alternation regex with \b anchors around
// every phrase.
func compileSignalPattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "when": true, "always": true, "never": true,
	"use": true, "using": true, "should": true, "must": true, "avoid": true,
	"prefer": true, "before": true, "after": true, "instead": true,
	"them": true, "they": true, "your": true, "into": true, "onto": true,
	"are": true, "is": true, "was": true, "were": true, "has": true,
	"have": true, "not": true, "all": true, "any": true, "each": true,
}

// maxKeywords bounds the evidence query breadth.
const maxKeywords = 8

// extractKeywords pulls the salient tokens from rule content: lowercased
// word tokens minus stopwords and short tokens, longest first, capped at
// maxKeywords. Ties keep first-seen order so extraction is deterministic.
func extractKeywords(content string) []string {
	seen := make(map[string]int) // token -> first position
	var tokens []string
	var b strings.Builder
	pos := 0
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if len(tok) < 3 || stopwords[tok] {
			return
		}
		if _, ok := seen[tok]; !ok {
			seen[tok] = pos
			tokens = append(tokens, tok)
			pos++
		}
	}
	for _, r := range strings.ToLower(content) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	sort.SliceStable(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return seen[tokens[i]] < seen[tokens[j]]
	})
	if len(tokens) > maxKeywords {
		tokens = tokens[:maxKeywords]
	}
	return tokens
}

// sessionSignal is the per-session classification. Sessions showing both
// signals are mixed: they count toward neither auto-decision threshold and
// push the gate to the LLM stage.
type sessionSignal int

const (
	signalNone sessionSignal = iota
	signalSuccess
	signalFailure
	signalMixed
)

// classifySession inspects all snippets of one session together. Multiple
// snippets in the same session count once.
func classifySession(snippets []string) sessionSignal {
	joined := strings.Join(snippets, "\n")
	success := successPattern.MatchString(joined)
	failure := failurePattern.MatchString(joined)
	switch {
	case success && failure:
		return signalMixed
	case success:
		return signalSuccess
	case failure:
		return signalFailure
	default:
		return signalNone
	}
}
