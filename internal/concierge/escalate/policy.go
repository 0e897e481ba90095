// Package escalate decides when a guest conversation is handed off to a
// human and notifies staff when it is.
//
// The decision is a pure priority table; the side-effecting notification is
// best-effort and never blocks or fails the guest-facing turn.
package escalate

import (
	"time"
)

// Reason is the machine-readable cause of an escalation.
type Reason string

const (
	// ReasonHumanRequest means the guest explicitly asked for a person.
	ReasonHumanRequest Reason = "human_request"
	// ReasonComplaint means the message was classified as a complaint.
	ReasonComplaint Reason = "complaint"
	// ReasonUnknownRepeated means the assistant failed to understand the
	// guest several turns in a row.
	ReasonUnknownRepeated Reason = "unknown_repeated"
	// ReasonGroupBooking means the request involves a group too large for
	// self-service booking.
	ReasonGroupBooking Reason = "group_booking"
	// ReasonError marks an internal failure that needs human follow-up.
	ReasonError Reason = "error"
)

const (
	// UnknownStreakThreshold is how many consecutive unknown turns trigger
	// an escalation.
	UnknownStreakThreshold = 3
	// GroupSizeThreshold is the guest count at which bookings go to staff.
	GroupSizeThreshold = 5
)

// Decide evaluates the escalation table in fixed priority order:
//
//  1. an explicit signal (human request or complaint) wins unconditionally,
//  2. an unknown streak at or over the threshold,
//  3. a guest-count entity at or over the group threshold,
//  4. otherwise no escalation.
//
// It is a pure function; the notifier side effect belongs to the caller.
func Decide(explicit Reason, unknownStreak, guestCount int) (Reason, bool) {
	switch explicit {
	case ReasonHumanRequest, ReasonComplaint:
		return explicit, true
	}
	if unknownStreak >= UnknownStreakThreshold {
		return ReasonUnknownRepeated, true
	}
	if guestCount >= GroupSizeThreshold && guestCount > 0 {
		return ReasonGroupBooking, true
	}
	return "", false
}

// Context carries everything staff need to pick up an escalated
// conversation. It is constructed per escalation event and handed to the
// Notifier; nothing here is stored.
type Context struct {
	Reason      Reason
	SenderKey   string
	DisplayName string
	// Message is the guest message that triggered the escalation.
	Message string
	// Snippet holds the last few conversation turns for context, oldest
	// first, already formatted one per element.
	Snippet   []string
	Timestamp time.Time
}
