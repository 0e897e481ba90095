// Package redact provides helpers for masking guest phone numbers and other
// sensitive values before they reach log output or staff-facing channels.
//
// Guest phone numbers are personal data. They must never appear in full in:
//   - Log lines emitted by the concierge
//   - Activity log rows stored in SQLite
//   - Escalation notices posted to the staff room
//
// Masking is best-effort: it operates on string representations and relies
// on callers to route sender identifiers through Phone before logging.
package redact

import "strings"

const placeholder = "[REDACTED]"

// Phone masks the middle digits of a phone number, keeping the first four
// and last two characters visible so staff can still distinguish senders.
// Inputs shorter than 8 characters are masked entirely.
//
// Example:
//
//	redact.Phone("+60123456789") → "+601••••••89"
func Phone(number string) string {
	if number == "" {
		return ""
	}
	if len(number) < 8 {
		return strings.Repeat("•", len(number))
	}
	return number[:4] + strings.Repeat("•", len(number)-6) + number[len(number)-2:]
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
