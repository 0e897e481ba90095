package intent

import "testing"

func TestMatchTier1_Categories(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"wifi password", "wifi password", CategoryWifi},
		{"wifi capitalised", "What's the WiFi password?", CategoryWifi},
		{"greeting", "hello there", CategoryGreeting},
		{"greeting malay", "selamat pagi", CategoryGreeting},
		{"thanks", "thanks a lot!", CategoryThanks},
		{"thanks chinese", "谢谢你", CategoryThanks},
		{"checkin", "what time is check-in?", CategoryCheckinInfo},
		{"checkout", "when do I need to check out", CategoryCheckoutInfo},
		{"directions", "how far is the hostel from the airport?", CategoryDirections},
		{"pricing", "how much per night?", CategoryPricing},
		{"availability", "any pods left for tonight?", CategoryAvailability},
		{"booking", "I want to book a capsule", CategoryBooking},
		{"complaint", "the shower is broken", CategoryComplaint},
		{"contact staff", "can I talk to a human please", CategoryContactStaff},
		{"facilities", "is there a laundry?", CategoryFacilities},
		{"rules", "is smoking allowed?", CategoryRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchTier1(tt.text)
			if !ok {
				t.Fatalf("matchTier1(%q) did not match, want %v", tt.text, tt.want)
			}
			if got != tt.want {
				t.Errorf("matchTier1(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatchTier1_NoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"do you think it will rain tomorrow",
		"asdfghjkl",
	} {
		if got, ok := matchTier1(text); ok {
			t.Errorf("matchTier1(%q) = %v, want no match", text, got)
		}
	}
}

// The table order is the tie-break rule: when a message matches more than one
// rule, the earlier rule must win. These inputs intentionally match two rules.
func TestMatchTier1_OrderIsTieBreak(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"thanks beats greeting", "hi, thanks so much!", CategoryThanks},
		{"complaint beats facilities", "the aircon is broken", CategoryComplaint},
		{"contact staff beats complaint", "let me speak to a person, this is unacceptable", CategoryContactStaff},
		{"checkin beats pricing", "how much is early check in?", CategoryCheckinInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchTier1(tt.text)
			if !ok || got != tt.want {
				t.Errorf("matchTier1(%q) = %v (matched=%v), want %v", tt.text, got, ok, tt.want)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	if got := ParseCategory("wifi"); got != CategoryWifi {
		t.Errorf("ParseCategory(wifi) = %v", got)
	}
	for _, bad := range []string{"", "WIFI ", "jailbreak", "system", "greeting; drop table"} {
		if got := ParseCategory(bad); got != CategoryUnknown {
			t.Errorf("ParseCategory(%q) = %v, want unknown", bad, got)
		}
	}
}
