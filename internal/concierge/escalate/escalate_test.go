package escalate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/capsulepod/concierge/internal/concierge/escalate"
)

func TestDecide_PriorityOrder(t *testing.T) {
	tests := []struct {
		name          string
		explicit      escalate.Reason
		unknownStreak int
		guestCount    int
		wantReason    escalate.Reason
		wantEscalate  bool
	}{
		{"nothing triggers", "", 0, 0, "", false},
		{"human request", escalate.ReasonHumanRequest, 0, 0, escalate.ReasonHumanRequest, true},
		{"complaint", escalate.ReasonComplaint, 0, 0, escalate.ReasonComplaint, true},
		{"streak below threshold", "", 2, 0, "", false},
		{"streak at threshold", "", 3, 0, escalate.ReasonUnknownRepeated, true},
		{"streak above threshold", "", 7, 0, escalate.ReasonUnknownRepeated, true},
		{"group below threshold", "", 0, 4, "", false},
		{"group at threshold", "", 0, 5, escalate.ReasonGroupBooking, true},
		{"group of six", "", 0, 6, escalate.ReasonGroupBooking, true},
		{"explicit beats streak", escalate.ReasonComplaint, 5, 0, escalate.ReasonComplaint, true},
		{"explicit beats group", escalate.ReasonHumanRequest, 0, 9, escalate.ReasonHumanRequest, true},
		{"streak beats group", "", 3, 9, escalate.ReasonUnknownRepeated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := escalate.Decide(tt.explicit, tt.unknownStreak, tt.guestCount)
			if ok != tt.wantEscalate {
				t.Fatalf("escalate: got %v, want %v", ok, tt.wantEscalate)
			}
			if got != tt.wantReason {
				t.Errorf("reason: got %q, want %q", got, tt.wantReason)
			}
		})
	}
}

// fakeSender is a test double for escalate.Sender.
type fakeSender struct {
	err      error
	roomID   string
	messages []string
}

func (f *fakeSender) SendNotice(roomID, message string) error {
	f.roomID = roomID
	f.messages = append(f.messages, message)
	return f.err
}

func TestRoomNotifier_FormatsNotice(t *testing.T) {
	s := &fakeSender{}
	n := escalate.NewRoomNotifier(s, "!staff:hostel.example")

	n.Notify(context.Background(), escalate.Context{
		Reason:      escalate.ReasonGroupBooking,
		SenderKey:   "+60123456789",
		DisplayName: "Aina",
		Message:     "can we book for 8 people",
		Snippet:     []string{"user: hello", "assistant: hi!"},
	})

	if len(s.messages) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(s.messages))
	}
	msg := s.messages[0]
	if !strings.Contains(msg, "group_booking") {
		t.Errorf("notice missing reason: %q", msg)
	}
	if !strings.Contains(msg, "Aina") {
		t.Errorf("notice missing display name: %q", msg)
	}
	if !strings.Contains(msg, "can we book for 8 people") {
		t.Errorf("notice missing message: %q", msg)
	}
	if !strings.Contains(msg, "user: hello") {
		t.Errorf("notice missing snippet: %q", msg)
	}
	if s.roomID != "!staff:hostel.example" {
		t.Errorf("room: got %q", s.roomID)
	}
}

func TestRoomNotifier_RedactsPhoneNumber(t *testing.T) {
	s := &fakeSender{}
	n := escalate.NewRoomNotifier(s, "!staff:hostel.example")

	n.Notify(context.Background(), escalate.Context{
		Reason:    escalate.ReasonComplaint,
		SenderKey: "+60123456789",
		Message:   "the fan is broken",
	})

	if strings.Contains(s.messages[0], "+60123456789") {
		t.Errorf("full phone number leaked into staff notice: %q", s.messages[0])
	}
}

func TestRoomNotifier_SendFailureSwallowed(t *testing.T) {
	s := &fakeSender{err: errors.New("homeserver down")}
	n := escalate.NewRoomNotifier(s, "!staff:hostel.example")

	// Must not panic or propagate; failure is logged and swallowed.
	n.Notify(context.Background(), escalate.Context{
		Reason:  escalate.ReasonHumanRequest,
		Message: "let me talk to someone",
	})
}

func TestRoomNotifier_EmptyRoomIsNoop(t *testing.T) {
	s := &fakeSender{}
	n := escalate.NewRoomNotifier(s, "")

	n.Notify(context.Background(), escalate.Context{Reason: escalate.ReasonComplaint})
	if len(s.messages) != 0 {
		t.Errorf("no room configured, but %d notices were sent", len(s.messages))
	}
}
