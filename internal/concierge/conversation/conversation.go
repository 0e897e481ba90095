// Package conversation implements the per-guest short-term conversation
// state: a bounded message history plus the counters the router needs to make
// escalation decisions. State is in-memory only; an idle conversation expires
// after a TTL and the next message starts fresh.
package conversation

import (
	"time"

	"golang.org/x/text/language"
)

// Role identifies who authored a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      string    // RoleUser or RoleAssistant
	Content   string    // message text
	Timestamp time.Time // when this message was recorded
}

// Conversation is the per-sender state the router reads and mutates on every
// turn. Instances handed out by the Store are deep copies; only the Store
// mutates the canonical entry.
type Conversation struct {
	ID        string    // unique conversation ID (UUID)
	SenderKey string    // normalized sender identifier (phone number)
	Messages  []Message // ordered message buffer (oldest first), ≤ MaxMessages
	Language  language.Tag
	// BookingState is an opaque sub-state owned by the booking workflow; the
	// store passes it through untouched.
	BookingState any
	// UnknownStreak counts consecutive turns classified as unknown. Reset on
	// any successful classification.
	UnknownStreak int
	CreatedAt     time.Time
	LastActiveAt  time.Time
}

// LastTurns returns up to n trailing messages, oldest first.
func (c *Conversation) LastTurns(n int) []Message {
	if n <= 0 || len(c.Messages) == 0 {
		return nil
	}
	if len(c.Messages) > n {
		return c.Messages[len(c.Messages)-n:]
	}
	return c.Messages
}
