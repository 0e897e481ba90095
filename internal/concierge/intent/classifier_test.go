package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/capsulepod/concierge/internal/concierge/intent"
)

// fakeProvider is a test double for intent.Provider.
type fakeProvider struct {
	res *intent.Result
	err error
	// calls counts Classify invocations so tests can assert tier-1 short-circuits.
	calls int
	// captured records the last request for assertion.
	captured intent.Request
}

func (f *fakeProvider) Classify(_ context.Context, req intent.Request) (*intent.Result, error) {
	f.calls++
	f.captured = req
	return f.res, f.err
}

var _ intent.Provider = (*fakeProvider)(nil)

func TestClassify_Tier1SkipsProvider(t *testing.T) {
	p := &fakeProvider{err: errors.New("should never be called")}
	c := intent.NewClassifier(p)

	got := c.Classify(context.Background(), "wifi password", nil)

	if got.Category != intent.CategoryWifi {
		t.Errorf("category: got %v, want wifi", got.Category)
	}
	if got.Source != intent.SourceRegex {
		t.Errorf("source: got %v, want regex", got.Source)
	}
	if got.Confidence != intent.RegexConfidence {
		t.Errorf("confidence: got %v, want %v", got.Confidence, intent.RegexConfidence)
	}
	if got.Entities == nil || len(got.Entities) != 0 {
		t.Errorf("entities: got %v, want empty map", got.Entities)
	}
	if p.calls != 0 {
		t.Errorf("provider was called %d times for a tier-1 match", p.calls)
	}
}

func TestClassify_Tier2Fallback(t *testing.T) {
	p := &fakeProvider{res: &intent.Result{
		Category:   intent.CategoryGeneral,
		Confidence: 0.7,
		Entities:   map[string]string{"guest_count": "2"},
	}}
	c := intent.NewClassifier(p)

	got := c.Classify(context.Background(), "something only a model can parse", nil)

	if p.calls != 1 {
		t.Fatalf("provider calls: got %d, want 1", p.calls)
	}
	if got.Category != intent.CategoryGeneral {
		t.Errorf("category: got %v, want general", got.Category)
	}
	if got.Source != intent.SourceLLM {
		t.Errorf("source: got %v, want llm", got.Source)
	}
	if got.Entities["guest_count"] != "2" {
		t.Errorf("entities not preserved: %v", got.Entities)
	}
}

func TestClassify_Tier2PassesHistory(t *testing.T) {
	p := &fakeProvider{res: &intent.Result{Category: intent.CategoryGeneral, Confidence: 0.9}}
	c := intent.NewClassifier(p)

	history := []intent.HistoryTurn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	c.Classify(context.Background(), "follow-up no pattern catches", history)

	if len(p.captured.History) != 2 {
		t.Fatalf("history turns forwarded: got %d, want 2", len(p.captured.History))
	}
	if p.captured.Message != "follow-up no pattern catches" {
		t.Errorf("message: got %q", p.captured.Message)
	}
}

func TestClassify_ProviderErrorDegradesToUnknown(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream exploded")}
	c := intent.NewClassifier(p)

	got := c.Classify(context.Background(), "no pattern matches this", nil)

	if got.Category != intent.CategoryUnknown {
		t.Errorf("category: got %v, want unknown", got.Category)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence: got %v, want 0", got.Confidence)
	}
	if got.Source != intent.SourceLLM {
		t.Errorf("source: got %v, want llm", got.Source)
	}
	if got.Entities == nil {
		t.Error("entities must never be nil")
	}
}

func TestClassify_NilProviderDegradesToUnknown(t *testing.T) {
	c := intent.NewClassifier(nil)

	got := c.Classify(context.Background(), "no pattern matches this", nil)

	if got.Category != intent.CategoryUnknown || got.Confidence != 0 {
		t.Errorf("got %+v, want degraded unknown result", got)
	}
}

func TestClassify_NilEntitiesNormalised(t *testing.T) {
	p := &fakeProvider{res: &intent.Result{Category: intent.CategoryGeneral, Confidence: 0.6}}
	c := intent.NewClassifier(p)

	got := c.Classify(context.Background(), "no pattern matches this", nil)
	if got.Entities == nil {
		t.Error("entities must be normalised to an empty map")
	}
}
