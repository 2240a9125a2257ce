package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Config configures the LLM collaborators: the primary provider, the
// ordered fallback list and the shared retry policy.
type Config struct {
	// Enabled gates all LLM calls. Disabled means NoOp collaborators.
	Enabled bool `koanf:"enabled"`

	// Provider is the primary provider name ("anthropic" or "openai").
	Provider string `koanf:"provider"`

	// Fallbacks is the ordered list of alternate provider names tried
	// after the primary. Only providers with credentials participate.
	Fallbacks []string `koanf:"fallbacks"`

	// Providers holds per-provider credentials and models.
	Providers map[string]ProviderConfig `koanf:"providers"`

	// Retry is the backoff policy applied around every candidate.
	Retry RetryPolicy `koanf:"retry"`
}

// DefaultConfig returns the standard LLM configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Provider:  "anthropic",
		Fallbacks: []string{"openai"},
		Retry:     DefaultRetryPolicy(),
	}
}

// ProviderError records one candidate's failure in the aggregated chain
// error.
type ProviderError struct {
	Provider string
	Err      error
}

// ChainExhaustedError aggregates every candidate's failure when the whole
// chain is exhausted.
type ChainExhaustedError struct {
	Failures []ProviderError
}

func (e *ChainExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d providers failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " [%s: %v]", f.Provider, f.Err)
	}
	return b.String()
}

// Chain tries an ordered list of provider candidates, each wrapped by the
// retry policy, short-circuiting on the first success.
type Chain struct {
	candidates []*Client
	retry      RetryPolicy
	logger     *zap.Logger
}

// NewChain builds the provider chain from configuration: the primary
// provider first, then the configured fallbacks, keeping only candidates
// whose credentials are present. Returns ErrNoProviders when nothing is
// usable.
func NewChain(cfg Config, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	order := append([]string{cfg.Provider}, cfg.Fallbacks...)
	seen := make(map[string]bool, len(order))
	var candidates []*Client
	for _, name := range order {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		providerCfg, ok := cfg.Providers[name]
		if !ok || providerCfg.APIKey == "" {
			continue
		}
		provider, err := newProvider(name, providerCfg)
		if err != nil {
			logger.Warn("skipping misconfigured provider",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, newClient(provider))
	}
	if len(candidates) == 0 {
		return nil, ErrNoProviders
	}

	return &Chain{candidates: candidates, retry: cfg.Retry, logger: logger}, nil
}

// newProvider constructs a completer by provider name.
func newProvider(name string, cfg ProviderConfig) (completer, error) {
	switch name {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// Validate tries each candidate under the retry policy until one succeeds.
func (ch *Chain) Validate(ctx context.Context, proposedRule, evidenceText string) (VerdictResult, error) {
	var result VerdictResult
	err := ch.do(ctx, func(ctx context.Context, c *Client) error {
		var err error
		result, err = c.Validate(ctx, proposedRule, evidenceText)
		return err
	})
	return result, err
}

// ExtractDeltas tries each candidate under the retry policy until one
// succeeds.
func (ch *Chain) ExtractDeltas(ctx context.Context, diaryText, existingBulletsText, evidenceText string) ([]playbook.Delta, error) {
	var deltas []playbook.Delta
	err := ch.do(ctx, func(ctx context.Context, c *Client) error {
		var err error
		deltas, err = c.ExtractDeltas(ctx, diaryText, existingBulletsText, evidenceText)
		return err
	})
	return deltas, err
}

func (ch *Chain) do(ctx context.Context, fn func(ctx context.Context, c *Client) error) error {
	var failures []ProviderError
	for _, candidate := range ch.candidates {
		name := candidate.provider.name()
		err := ch.retry.Do(ctx, func(ctx context.Context) error {
			return fn(ctx, candidate)
		})
		if err == nil {
			return nil
		}
		ch.logger.Warn("provider exhausted, falling back",
			zap.String("provider", name),
			zap.Error(err))
		failures = append(failures, ProviderError{Provider: name, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return &ChainExhaustedError{Failures: failures}
}

var (
	_ VerdictClient = (*Chain)(nil)
	_ Reflector     = (*Chain)(nil)
)

// NoOpVerdict accepts everything with caution at fixed confidence. Used
// when LLM validation is disabled.
type NoOpVerdict struct{}

// Validate returns ACCEPT_WITH_CAUTION without calling any provider.
func (NoOpVerdict) Validate(ctx context.Context, proposedRule, evidenceText string) (VerdictResult, error) {
	return VerdictResult{
		Verdict:    VerdictAcceptWithCaution,
		Confidence: 0.5,
		Reason:     "LLM validation disabled",
	}, nil
}

// NoOpReflector extracts nothing. Used when LLM reflection is disabled.
type NoOpReflector struct{}

// ExtractDeltas returns an empty slice.
func (NoOpReflector) ExtractDeltas(ctx context.Context, diaryText, existingBulletsText, evidenceText string) ([]playbook.Delta, error) {
	return []playbook.Delta{}, nil
}

var (
	_ VerdictClient = NoOpVerdict{}
	_ Reflector     = NoOpReflector{}
)
