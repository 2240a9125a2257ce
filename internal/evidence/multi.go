package evidence

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MultiSearcher fans a query out to several independent evidence sources
// concurrently and merges the results. Each source's failure is isolated:
// one unreachable source neither blocks nor fails the others. Only when
// every source fails does Search return an error.
type MultiSearcher struct {
	sources []Searcher
	names   []string
	logger  *zap.Logger
}

// NewMultiSearcher builds a fan-out searcher over named sources.
func NewMultiSearcher(logger *zap.Logger) *MultiSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiSearcher{logger: logger}
}

// AddSource registers an evidence source under a diagnostic name.
func (m *MultiSearcher) AddSource(name string, s Searcher) {
	m.sources = append(m.sources, s)
	m.names = append(m.names, name)
}

// Search queries all sources concurrently and returns merged snippets.
// Sources reporting ErrNotFound contribute nothing but do not count as
// failures.
func (m *MultiSearcher) Search(ctx context.Context, q Query) ([]Snippet, error) {
	if len(m.sources) == 0 {
		return nil, ErrNotFound
	}
	if len(m.sources) == 1 {
		return m.sources[0].Search(ctx, q)
	}

	var mu sync.Mutex
	var merged []Snippet
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		g.Go(func() error {
			snippets, err := src.Search(gctx, q)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				merged = append(merged, snippets...)
			case errors.Is(err, ErrNotFound):
				// Absence is not failure.
			default:
				m.logger.Warn("evidence source failed",
					zap.String("source", m.names[i]),
					zap.Error(err))
				failures = append(failures, err)
			}
			// Always nil: isolation means no source cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	if len(merged) == 0 {
		if len(failures) == len(m.sources) {
			return nil, errors.Join(failures...)
		}
		return nil, ErrNotFound
	}
	return merged, nil
}

var _ Searcher = (*MultiSearcher)(nil)
