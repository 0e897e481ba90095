package knowledge_test

import (
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/capsulepod/concierge/internal/concierge/intent"
	"github.com/capsulepod/concierge/internal/concierge/knowledge"
)

const sampleDoc = `
answers:
  wifi:
    en: "Network: PodGuest, password at your capsule card."
    ms: "Rangkaian: PodGuest, kata laluan pada kad kapsul anda."
    zh: "网络：PodGuest，密码在您的胶囊卡上。"
  checkin_info:
    en: "Check-in is from 2 PM."
  greeting:
    en: "Hello! How can I help?"
exempt_numbers:
  - "+60111222333"
  - "60144555666"
`

func TestParse_ValidDocument(t *testing.T) {
	b, err := knowledge.Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := b.Answer(intent.CategoryWifi, language.Malay)
	if !ok || !strings.Contains(got, "Rangkaian") {
		t.Errorf("Malay wifi answer: got %q (ok=%v)", got, ok)
	}

	exempt := b.ExemptNumbers()
	if len(exempt) != 2 {
		t.Errorf("exempt numbers: got %d, want 2", len(exempt))
	}
}

func TestAnswer_EnglishFallback(t *testing.T) {
	b, err := knowledge.Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// checkin_info has no zh column: fall back to English.
	got, ok := b.Answer(intent.CategoryCheckinInfo, language.Chinese)
	if !ok || !strings.Contains(got, "2 PM") {
		t.Errorf("fallback answer: got %q (ok=%v)", got, ok)
	}
}

func TestAnswer_MissingCategory(t *testing.T) {
	b, err := knowledge.Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := b.Answer(intent.CategoryComplaint, language.English); ok {
		t.Error("expected no answer for a category without an entry")
	}
}

func TestParse_RejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", ":\n  - ["},
		{"missing answers", `exempt_numbers: ["+60111222333"]`},
		{"empty answers", `answers: {}`},
		{"bad language column", "answers:\n  wifi:\n    fr: \"le wifi\""},
		{"empty answer string", "answers:\n  wifi:\n    en: \"\""},
		{"unknown top-level key", "answers:\n  wifi:\n    en: ok\nextra: true"},
		{"short exempt number", "answers:\n  wifi:\n    en: ok\nexempt_numbers: [\"123\"]"},
		{"unknown category", "answers:\n  pool_party:\n    en: ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := knowledge.Parse([]byte(tt.doc)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestHandle_SwapServesNewSnapshot(t *testing.T) {
	first, err := knowledge.Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := knowledge.NewHandle(first)

	if _, ok := h.Answer(intent.CategoryWifi, language.English); !ok {
		t.Fatal("handle should serve the initial snapshot")
	}

	second, err := knowledge.Parse([]byte("answers:\n  wifi:\n    en: \"New network details.\""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Swap(second)

	got, ok := h.Answer(intent.CategoryWifi, language.English)
	if !ok || got != "New network details." {
		t.Errorf("after swap: got %q (ok=%v)", got, ok)
	}
	if len(h.ExemptNumbers()) != 0 {
		t.Errorf("after swap exempt list should be empty, got %v", h.ExemptNumbers())
	}
}

func TestHandle_ZeroValueAnswersNothing(t *testing.T) {
	var h knowledge.Handle
	if _, ok := h.Answer(intent.CategoryWifi, language.English); ok {
		t.Error("zero handle should answer nothing")
	}
}
