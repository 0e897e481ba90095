package router

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Guest-facing canned messages, one column per supported language. The maps
// key off the language base subtag; English is the fallback.

var escalationAcks = map[string]string{
	"en": "I've passed your message to our staff — someone will get back to you shortly. 🙏",
	"ms": "Saya telah sampaikan mesej anda kepada staf kami — mereka akan menghubungi anda sebentar lagi. 🙏",
	"zh": "我已将您的信息转达给我们的工作人员，他们会尽快与您联系。🙏",
}

var unavailableMessages = map[string]string{
	"en": "Sorry, I can't help with that right now. Please contact our front desk and they'll sort you out.",
	"ms": "Maaf, saya tidak dapat membantu buat masa ini. Sila hubungi kaunter hadapan kami untuk bantuan.",
	"zh": "抱歉，我暂时无法帮您处理这个问题。请联系前台，他们会为您解决。",
}

// escalationAck returns the acknowledgement sent after an escalation.
func escalationAck(tag language.Tag) string {
	return localized(escalationAcks, tag)
}

// unavailableMessage is the generic degradation reply: never silence, never
// a raw error.
func unavailableMessage(tag language.Tag) string {
	return localized(unavailableMessages, tag)
}

// rateLimitNotice is the structured denial with retry guidance. The sender's
// language is unknown at this point (no conversation state is touched on a
// denial), so the notice is English-only.
func rateLimitNotice(retryAfter time.Duration) string {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("⏳ You're sending messages a bit too quickly. Please try again in %d seconds.", secs)
}

func localized(m map[string]string, tag language.Tag) string {
	base, _ := tag.Base()
	if s, ok := m[base.String()]; ok {
		return s
	}
	return m["en"]
}
