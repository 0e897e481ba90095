// Package intent provides the two-tier intent classification layer for the
// concierge.
//
// The classification layer sits between the raw WhatsApp message and the
// reply router. Tier 1 is a fixed, ordered table of regular expressions that
// resolves the common guest questions instantly and deterministically. Tier 2
// is an LLM call used only when no pattern matches.
//
// Invariants:
//   - Classification never fails a turn. Provider errors and malformed LLM
//     output degrade to CategoryUnknown with zero confidence.
//   - Every category produced by this package is a member of the closed
//     Category set; LLM output outside the set is coerced to unknown.
//   - The pattern table's order is the tie-break rule: the first matching
//     entry wins, so more specific categories are listed before broader ones.
package intent

import (
	"context"
	"errors"
	"time"
)

// ErrUpstreamRateLimit is returned by a Provider when the LLM API reports a
// rate-limiting condition (e.g. HTTP 429 Too Many Requests).
var ErrUpstreamRateLimit = errors.New("intent: upstream rate limit exceeded")

// ErrMalformedOutput is returned by a Provider when the LLM returns a
// structurally valid HTTP response whose body cannot be interpreted as a
// classification result.
var ErrMalformedOutput = errors.New("intent: malformed response from LLM")

// Category is one of the closed set of guest-message intents.
type Category string

const (
	CategoryGreeting     Category = "greeting"
	CategoryThanks       Category = "thanks"
	CategoryWifi         Category = "wifi"
	CategoryDirections   Category = "directions"
	CategoryCheckinInfo  Category = "checkin_info"
	CategoryCheckoutInfo Category = "checkout_info"
	CategoryPricing      Category = "pricing"
	CategoryAvailability Category = "availability"
	CategoryBooking      Category = "booking"
	CategoryComplaint    Category = "complaint"
	CategoryContactStaff Category = "contact_staff"
	CategoryFacilities   Category = "facilities"
	CategoryRules        Category = "rules"
	CategoryGeneral      Category = "general"
	CategoryUnknown      Category = "unknown"
)

// Categories returns every member of the closed category set, in pattern-table
// priority order followed by the residual categories.
func Categories() []Category {
	return []Category{
		CategoryContactStaff, CategoryComplaint, CategoryThanks,
		CategoryGreeting, CategoryWifi, CategoryCheckinInfo,
		CategoryCheckoutInfo, CategoryDirections, CategoryPricing,
		CategoryAvailability, CategoryBooking, CategoryFacilities,
		CategoryRules, CategoryGeneral, CategoryUnknown,
	}
}

// ParseCategory coerces an arbitrary string into the closed Category set.
// Anything that is not an exact member comes back as CategoryUnknown; this is
// the single choke point that keeps LLM output inside the enum.
func ParseCategory(s string) Category {
	c := Category(s)
	for _, known := range Categories() {
		if c == known {
			return c
		}
	}
	return CategoryUnknown
}

// Source records which tier produced a classification.
type Source string

const (
	// SourceRegex marks a tier-1 pattern-table match.
	SourceRegex Source = "regex"
	// SourceLLM marks a tier-2 model classification (including degraded
	// unknown results from failed LLM calls).
	SourceLLM Source = "llm"
)

// RegexConfidence is the fixed confidence assigned to tier-1 matches.
const RegexConfidence = 0.85

// HistoryTurn is a prior conversation turn injected into the LLM context
// window so the model has continuity across messages.
type HistoryTurn struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the message text.
	Content string
}

// Request is the input to a single tier-2 classification call.
type Request struct {
	// Message is the raw text sent by the guest.
	Message string
	// History contains the most recent conversation turns, oldest first.
	// Providers include at most the last three.
	History []HistoryTurn
}

// Result is the transient output of a classification. It is never stored;
// the router copies the fields it needs into the activity event.
type Result struct {
	// Category is the classified intent, always a member of the closed set.
	Category Category `json:"category"`
	// Confidence is the model's certainty in [0,1]. Tier-1 matches carry the
	// fixed RegexConfidence.
	Confidence float64 `json:"confidence"`
	// Entities maps extracted entity names to raw string values
	// (e.g. "guest_count" → "6"). Never nil after classification.
	Entities map[string]string `json:"entities"`
	// Source records which tier produced this result.
	Source Source `json:"source"`
}

// Provider is the tier-2 model backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// When an implementation is unavailable (e.g. network error), it should
// return a descriptive error; the Classifier degrades to CategoryUnknown.
type Provider interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}

// providerTimeout bounds a single tier-2 round trip. A slower call is treated
// as a classification failure, not a turn failure.
const providerTimeout = 30 * time.Second
