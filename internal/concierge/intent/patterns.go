package intent

import "regexp"

// rule pairs a category with the patterns that resolve it at tier 1.
type rule struct {
	category Category
	patterns []*regexp.Regexp
}

// patternTable is the ordered tier-1 matching table. Order is load-bearing:
// the first matching rule wins, so rules that must take precedence over
// broader ones appear earlier. In particular:
//
//   - contact_staff and complaint come first so explicit escalation signals
//     are never swallowed by politeness patterns.
//   - thanks precedes greeting so "hi, thanks a lot!" classifies as thanks.
//   - checkin/checkout precede pricing/availability because messages like
//     "what time is check in" often also contain "when".
//
// Patterns are compiled once at package init; all are case-insensitive.
var patternTable = []rule{
	{CategoryContactStaff, compile(
		`\b(talk|speak|chat)\s+(to|with)\s+(a\s+)?(human|person|staff|someone|somebody)\b`,
		`\b(real|actual)\s+(human|person)\b`,
		`\bcall\s+(the\s+)?(staff|reception|front\s*desk)\b`,
		`\bhuman\s+(help|support|agent)\b`,
	)},
	{CategoryComplaint, compile(
		`\b(complain|complaint|terrible|awful|horrible|disgusting|unacceptable)\b`,
		`\b(not|isn'?t|wasn'?t)\s+(working|clean|acceptable)\b`,
		`\b(broken|dirty|smelly|noisy)\b`,
		`\brefund\b`,
	)},
	{CategoryThanks, compile(
		`\b(thanks?|thank\s+you|thx|ty|cheers)\b`,
		`\bterima\s+kasih\b`,
		`谢谢|多谢`,
	)},
	{CategoryGreeting, compile(
		`^\s*(hi|hii+|hello|hey|yo|howdy)\b`,
		`^\s*good\s+(morning|afternoon|evening|day)\b`,
		`^\s*(selamat\s+(pagi|petang|malam)|apa\s+khabar)\b`,
		`^\s*(你好|您好|嗨)`,
	)},
	{CategoryWifi, compile(
		`\bwi-?fi\b`,
		`\b(internet|network)\s+(password|access|code)\b`,
		`\bpassword\s+for\s+(the\s+)?(internet|network)\b`,
	)},
	{CategoryCheckinInfo, compile(
		`\bcheck[\s-]?in\b`,
		`\b(early|late)\s+arrival\b`,
		`\bwhat\s+time\s+can\s+i\s+(arrive|come)\b`,
	)},
	{CategoryCheckoutInfo, compile(
		`\bcheck[\s-]?out\b`,
		`\blate\s+departure\b`,
		`\bluggage\s+(storage|store|keep)\b`,
	)},
	{CategoryDirections, compile(
		`\b(where|how)\s+(is|are|do\s+i\s+(get|go|find))\b.*\b(hostel|you|located|address)\b`,
		`\b(directions?|address|location|map)\b`,
		`\bhow\s+far\b`,
		`\b(nearest|closest)\s+(station|mrt|lrt|bus|airport)\b`,
	)},
	{CategoryPricing, compile(
		`\b(price|pricing|cost|rate|fee|charge)s?\b`,
		`\bhow\s+much\b`,
		`\bberapa\s+harga\b`,
		`\bper\s+night\b`,
	)},
	{CategoryAvailability, compile(
		`\b(available|availability|vacancy|vacancies)\b`,
		`\bany\s+(capsules?|pods?|beds?|rooms?)\s+(left|free|available)\b`,
		`\bfully\s+booked\b`,
	)},
	{CategoryBooking, compile(
		`\b(book|booking|reserve|reservation)\b`,
		`\b(cancel|change|extend)\s+(my\s+)?(stay|booking|reservation)\b`,
	)},
	{CategoryFacilities, compile(
		`\b(laundry|locker|shower|kitchen|lounge|aircon|air[\s-]?con(ditioning)?)\b`,
		`\b(towel|blanket|pillow)s?\b`,
		`\b(facilities|amenities)\b`,
	)},
	{CategoryRules, compile(
		`\b(rules?|policy|policies|allowed|curfew)\b`,
		`\b(smoking|smoke|alcohol|drink|visitors?|guests?\s+allowed|pets?)\b`,
		`\bquiet\s+hours?\b`,
	)},
}

// compile builds case-insensitive regexps from the given expressions. It is
// only called with literal patterns at init time, so a bad pattern panics
// immediately rather than surfacing at classification time.
func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// matchTier1 runs text through the pattern table and returns the category of
// the first matching rule. The boolean is false when no pattern matches and
// the caller should fall through to tier 2.
func matchTier1(text string) (Category, bool) {
	for _, r := range patternTable {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				return r.category, true
			}
		}
	}
	return CategoryUnknown, false
}
