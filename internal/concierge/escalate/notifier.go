package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/capsulepod/concierge/common/redact"
)

// Notifier delivers escalation notices to staff.
//
// Implementations MUST NOT block the caller for longer than a short timeout;
// delivery failures should be logged, not propagated. The guest always gets
// an acknowledgement whether or not the staff notice went through.
type Notifier interface {
	Notify(ctx context.Context, ec Context)
}

// Sender is the messaging client subset needed by RoomNotifier. Defined as an
// interface so the notifier can be unit-tested without a homeserver.
type Sender interface {
	SendNotice(roomID, message string) error
}

// RoomNotifier posts formatted escalation notices to a staff room.
type RoomNotifier struct {
	sender Sender
	roomID string
}

// NewRoomNotifier creates a RoomNotifier that posts to roomID via sender.
func NewRoomNotifier(sender Sender, roomID string) *RoomNotifier {
	return &RoomNotifier{sender: sender, roomID: roomID}
}

// Notify formats ec as a human-readable notice and posts it to the staff
// room. Errors are logged at WARN level and swallowed.
func (n *RoomNotifier) Notify(ctx context.Context, ec Context) {
	if n.roomID == "" {
		return
	}
	if ec.Timestamp.IsZero() {
		ec.Timestamp = time.Now()
	}

	name := ec.DisplayName
	if name == "" {
		name = "guest"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s escalation [%s] from %s (%s)\n",
		reasonIcon(ec.Reason), ec.Reason, name, redact.Phone(ec.SenderKey))
	fmt.Fprintf(&b, "  message: %s\n", ec.Message)
	if len(ec.Snippet) > 0 {
		b.WriteString("  recent turns:\n")
		for _, line := range ec.Snippet {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	if err := n.sender.SendNotice(n.roomID, b.String()); err != nil {
		slog.Warn("escalation notifier: failed to send staff notice",
			"room", n.roomID, "reason", ec.Reason, "err", err)
	} else {
		slog.Debug("escalation notifier: sent staff notice",
			"room", n.roomID, "reason", ec.Reason)
	}
}

// Noop is a no-op Notifier used when no staff channel is configured.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Context) {}

// reasonIcon returns a Unicode icon for the escalation reason.
func reasonIcon(r Reason) string {
	switch r {
	case ReasonHumanRequest:
		return "🙋"
	case ReasonComplaint:
		return "⚠️"
	case ReasonUnknownRepeated:
		return "❓"
	case ReasonGroupBooking:
		return "👥"
	case ReasonError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
