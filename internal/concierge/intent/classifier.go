package intent

import (
	"context"
	"log/slog"
)

// Classifier is the front door of the classification layer. It runs the
// tier-1 pattern table first and only consults the tier-2 Provider when no
// pattern matches.
//
// Classify never returns an error: any provider failure degrades to an
// unknown result so the router can always complete the turn.
type Classifier struct {
	provider Provider
}

// NewClassifier returns a Classifier backed by provider. A nil provider is
// allowed; tier-2 then degrades straight to unknown, which keeps the
// pattern-matching tier fully functional when no LLM is configured.
func NewClassifier(provider Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify labels text with a Category.
//
// Tier 1: the ordered pattern table. A match returns immediately with the
// fixed RegexConfidence, empty entities and SourceRegex — no network call.
//
// Tier 2: the Provider, bounded by providerTimeout. Errors (including a
// timed-out call) are logged and collapsed to
// {unknown, 0, {}, llm}; they never propagate.
func (c *Classifier) Classify(ctx context.Context, text string, history []HistoryTurn) *Result {
	if cat, ok := matchTier1(text); ok {
		return &Result{
			Category:   cat,
			Confidence: RegexConfidence,
			Entities:   map[string]string{},
			Source:     SourceRegex,
		}
	}

	if c.provider == nil {
		return degradedResult()
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	res, err := c.provider.Classify(ctx, Request{Message: text, History: history})
	if err != nil {
		slog.Warn("intent: tier-2 classification failed, degrading to unknown", "err", err)
		return degradedResult()
	}
	if res.Entities == nil {
		res.Entities = map[string]string{}
	}
	res.Source = SourceLLM
	return res
}

// degradedResult is the classification used when tier 2 is unavailable or
// fails. Zero confidence distinguishes it from a genuine model "unknown".
func degradedResult() *Result {
	return &Result{
		Category:   CategoryUnknown,
		Confidence: 0,
		Entities:   map[string]string{},
		Source:     SourceLLM,
	}
}
