package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	t.Run("drops stopwords and short tokens", func(t *testing.T) {
		got := extractKeywords("always use the linter before committing")
		assert.NotContains(t, got, "always")
		assert.NotContains(t, got, "use")
		assert.NotContains(t, got, "the")
		assert.Contains(t, got, "linter")
		assert.Contains(t, got, "committing")
	})

	t.Run("longest tokens first", func(t *testing.T) {
		got := extractKeywords("run migrations sequentially")
		assert.Equal(t, []string{"sequentially", "migrations", "run"}, got)
	})

	t.Run("deduplicates tokens", func(t *testing.T) {
		got := extractKeywords("retry retry retry backoff")
		assert.Equal(t, []string{"backoff", "retry"}, got)
	})

	t.Run("caps at eight keywords", func(t *testing.T) {
		got := extractKeywords("alpha1 bravo2 charlie3 delta4 echo5 foxtrot6 golf7 hotel8 india9 juliet10")
		assert.Len(t, got, maxKeywords)
	})

	t.Run("all stopwords yields nothing", func(t *testing.T) {
		assert.Empty(t, extractKeywords("always use the and for with"))
	})
}

func TestClassifySession(t *testing.T) {
	tests := []struct {
		name     string
		snippets []string
		want     sessionSignal
	}{
		{"success phrase", []string{"the refactor successfully landed"}, signalSuccess},
		{"failure phrase", []string{"the build crashed on startup"}, signalFailure},
		{"both signals in one session", []string{"fixed the parser"}, signalSuccess},
		{"mixed across snippets", []string{"fixed the parser", "then the deploy crashed"}, signalMixed},
		{"no signal", []string{"investigated the logging setup"}, signalNone},
		{"word boundaries respected", []string{"prefixed theme tokens"}, signalNone},
		{"case insensitive", []string{"RESOLVED the incident"}, signalSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySession(tt.snippets))
		})
	}
}
