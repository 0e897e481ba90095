// Package router orchestrates one guest turn: rate check, conversation
// lookup, classification, escalation decision, reply composition and state
// update. It is the only package that sequences the concierge's stateful
// components, and its single entry point never fails — every turn terminates
// in a normal reply, an escalation acknowledgement or a rate-limit notice.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/capsulepod/concierge/common/redact"
	"github.com/capsulepod/concierge/common/trace"
	"github.com/capsulepod/concierge/internal/concierge/activity"
	"github.com/capsulepod/concierge/internal/concierge/conversation"
	"github.com/capsulepod/concierge/internal/concierge/escalate"
	"github.com/capsulepod/concierge/internal/concierge/intent"
	"github.com/capsulepod/concierge/internal/concierge/ratelimit"
)

// Knowledge answers a category in a given language from the static base.
type Knowledge interface {
	Answer(category intent.Category, tag language.Tag) (string, bool)
}

// Replier is the LLM collaborator used to compose free-form replies when the
// knowledge base has no curated answer.
type Replier interface {
	Chat(ctx context.Context, systemPrompt string, history []intent.HistoryTurn, userMessage string) (string, error)
}

// Recorder receives the per-turn observability event. Failures are logged
// and never affect the guest-facing result.
type Recorder interface {
	Record(ctx context.Context, evt activity.Event) error
}

// Inbound is one decoded guest message handed over by the transport layer.
type Inbound struct {
	// SenderKey is the guest identifier, typically a phone number in any
	// formatting; the router normalizes it.
	SenderKey   string
	DisplayName string
	Text        string
}

// Outbound is the terminal result of a routed turn.
type Outbound struct {
	// Reply is the text to send back to the guest. Always non-empty.
	Reply string

	Intent     intent.Category
	Confidence float64
	Source     intent.Source

	Escalated        bool
	EscalationReason escalate.Reason
	RateLimited      bool
}

// Router wires the concierge pipeline together. All collaborators are
// injected; the Router owns no state of its own beyond the references.
type Router struct {
	limiter    *ratelimit.Limiter
	convs      *conversation.Store
	classifier *intent.Classifier
	knowledge  Knowledge
	notifier   escalate.Notifier
	recorder   Recorder
	replier    Replier
}

// Options carries the optional collaborators.
type Options struct {
	// Replier composes free-form answers; nil means knowledge-base-or-fallback.
	Replier Replier
	// Recorder receives activity events; nil disables recording.
	Recorder Recorder
	// Notifier receives escalations; nil defaults to escalate.Noop.
	Notifier escalate.Notifier
}

// New constructs a Router. limiter, convs, classifier and knowledge are
// required; opts members may be nil.
func New(limiter *ratelimit.Limiter, convs *conversation.Store, classifier *intent.Classifier, kb Knowledge, opts Options) *Router {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = escalate.Noop{}
	}
	return &Router{
		limiter:    limiter,
		convs:      convs,
		classifier: classifier,
		knowledge:  kb,
		notifier:   notifier,
		recorder:   opts.Recorder,
		replier:    opts.Replier,
	}
}

// replySystemPrompt frames the free-form reply call. The guest message is
// data; the prompt is fixed.
const replySystemPrompt = `You are the friendly WhatsApp assistant of a capsule hostel.
Answer the guest's question briefly and politely in the guest's language.
If you do not know the answer, say so and suggest contacting the front desk.
Never invent prices, availability or booking confirmations.`

// Handle routes one inbound message and always returns a well-formed
// Outbound. Any panic in a collaborator is recovered: the guest receives the
// generic unavailable message and staff are notified with reason "error".
func (r *Router) Handle(ctx context.Context, in Inbound) (out Outbound) {
	start := time.Now()
	traceID := trace.GenerateID()
	ctx = trace.WithTraceID(ctx, traceID)
	key := ratelimit.NormalizeKey(in.SenderKey)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("router: recovered from panic",
				"trace", traceID, "sender", redact.Phone(key), "panic", rec)
			r.notifier.Notify(ctx, escalate.Context{
				Reason:      escalate.ReasonError,
				SenderKey:   key,
				DisplayName: in.DisplayName,
				Message:     in.Text,
			})
			out = Outbound{
				Reply:            unavailableMessage(language.English),
				Intent:           intent.CategoryUnknown,
				Escalated:        true,
				EscalationReason: escalate.ReasonError,
			}
			r.record(ctx, traceID, key, out, start)
		}
	}()

	// 1. Admission control. A denial mutates no conversation state.
	if d := r.limiter.Check(key); !d.Allowed {
		slog.Info("router: rate limited",
			"trace", traceID, "sender", redact.Phone(key),
			"reason", d.Reason, "retry_after", d.RetryAfter)
		out = Outbound{
			Reply:       rateLimitNotice(d.RetryAfter),
			RateLimited: true,
		}
		r.record(ctx, traceID, key, out, start)
		return out
	}

	// 2. Conversation lookup (fresh state when expired) and classification
	// with the trimmed history.
	conv := r.convs.GetOrCreate(key)
	res := r.classifier.Classify(ctx, in.Text, historyTurns(conv, 3))

	// 3. Escalation decision.
	streak := 0
	if res.Category == intent.CategoryUnknown {
		streak = r.convs.IncrementUnknown(key)
	}
	reason, shouldEscalate := escalate.Decide(
		explicitReason(res), streak, guestCount(res.Entities))

	if shouldEscalate {
		return r.escalateTurn(ctx, traceID, key, in, conv, res, reason, start)
	}

	// 4. Normal reply path: append the guest message (this also refreshes
	// the detected language), compose, append the reply.
	updated := r.convs.AddMessage(key, conversation.RoleUser, in.Text)
	reply := r.composeReply(ctx, res, updated)
	r.convs.AddMessage(key, conversation.RoleAssistant, reply)
	if res.Category != intent.CategoryUnknown {
		r.convs.ResetUnknown(key)
	}

	out = Outbound{
		Reply:      reply,
		Intent:     res.Category,
		Confidence: res.Confidence,
		Source:     res.Source,
	}
	r.record(ctx, traceID, key, out, start)
	return out
}

// escalateTurn notifies staff (best-effort), appends only the inbound guest
// message to history, and returns the acknowledgement.
func (r *Router) escalateTurn(ctx context.Context, traceID, key string, in Inbound, conv *conversation.Conversation, res *intent.Result, reason escalate.Reason, start time.Time) Outbound {
	r.notifier.Notify(ctx, escalate.Context{
		Reason:      reason,
		SenderKey:   key,
		DisplayName: in.DisplayName,
		Message:     in.Text,
		Snippet:     snippet(conv, 3),
	})

	updated := r.convs.AddMessage(key, conversation.RoleUser, in.Text)

	out := Outbound{
		Reply:            escalationAck(updated.Language),
		Intent:           res.Category,
		Confidence:       res.Confidence,
		Source:           res.Source,
		Escalated:        true,
		EscalationReason: reason,
	}
	slog.Info("router: escalated",
		"trace", traceID, "sender", redact.Phone(key), "reason", reason)
	r.record(ctx, traceID, key, out, start)
	return out
}

// composeReply picks the curated knowledge-base answer when one exists, falls
// back to the LLM replier, and degrades to the generic unavailable message.
func (r *Router) composeReply(ctx context.Context, res *intent.Result, conv *conversation.Conversation) string {
	if answer, ok := r.knowledge.Answer(res.Category, conv.Language); ok {
		return answer
	}

	if r.replier != nil {
		reply, err := r.replier.Chat(ctx, replySystemPrompt, historyTurns(conv, 3), lastUserMessage(conv))
		if err == nil && reply != "" {
			return reply
		}
		if err != nil {
			slog.Warn("router: reply composition failed", "err", err)
		}
	}

	return unavailableMessage(conv.Language)
}

// record emits the per-turn activity event. Recording failures are logged
// and swallowed.
func (r *Router) record(ctx context.Context, traceID, key string, out Outbound, start time.Time) {
	if r.recorder == nil {
		return
	}
	outcome := "reply"
	switch {
	case out.RateLimited:
		outcome = "rate_limited"
	case out.Escalated:
		outcome = "escalated"
	}
	evt := activity.Event{
		TraceID:    traceID,
		Sender:     redact.Phone(key),
		Intent:     string(out.Intent),
		Confidence: out.Confidence,
		Source:     string(out.Source),
		Escalation: string(out.EscalationReason),
		Outcome:    outcome,
		LatencyMS:  time.Since(start).Milliseconds(),
	}
	if err := r.recorder.Record(ctx, evt); err != nil {
		slog.Warn("router: record activity event", "trace", traceID, "err", err)
	}
}

// explicitReason maps classifier output to the unconditional escalation
// signals.
func explicitReason(res *intent.Result) escalate.Reason {
	switch res.Category {
	case intent.CategoryContactStaff:
		return escalate.ReasonHumanRequest
	case intent.CategoryComplaint:
		return escalate.ReasonComplaint
	}
	return ""
}

// guestCount extracts the guest_count entity, zero when absent or malformed.
func guestCount(entities map[string]string) int {
	v, ok := entities["guest_count"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// historyTurns converts the trailing conversation messages into classifier
// history turns.
func historyTurns(conv *conversation.Conversation, n int) []intent.HistoryTurn {
	msgs := conv.LastTurns(n)
	turns := make([]intent.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, intent.HistoryTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// snippet formats the trailing messages for the staff notice.
func snippet(conv *conversation.Conversation, n int) []string {
	msgs := conv.LastTurns(n)
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return lines
}

// lastUserMessage returns the newest user-authored message in the
// conversation, falling back to the newest message of any role.
func lastUserMessage(conv *conversation.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == conversation.RoleUser {
			return conv.Messages[i].Content
		}
	}
	if len(conv.Messages) > 0 {
		return conv.Messages[len(conv.Messages)-1].Content
	}
	return ""
}
