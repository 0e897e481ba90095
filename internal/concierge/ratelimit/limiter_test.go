package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestCheck_AllowsUpToMinuteCap(t *testing.T) {
	l := NewLimiter(20, 100)
	now := time.Now()

	for i := 0; i < 20; i++ {
		d := l.checkAt("60123456789", now.Add(time.Duration(i)*time.Second))
		if !d.Allowed {
			t.Fatalf("check %d/20 denied: %+v", i+1, d)
		}
	}

	// The 21st within the same minute is denied with the per-minute reason
	// and a positive RetryAfter.
	d := l.checkAt("60123456789", now.Add(21*time.Second))
	if d.Allowed {
		t.Fatal("21st check within a minute should be denied")
	}
	if d.Reason != ReasonPerMinute {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonPerMinute)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter should be positive, got %v", d.RetryAfter)
	}
}

func TestCheck_MinuteWindowSlides(t *testing.T) {
	l := NewLimiter(2, 100)
	now := time.Now()

	l.checkAt("key", now)
	l.checkAt("key", now.Add(time.Second))
	if d := l.checkAt("key", now.Add(2*time.Second)); d.Allowed {
		t.Fatal("third check inside the minute should be denied")
	}

	// Once the first timestamp leaves the 60s window a slot frees up.
	if d := l.checkAt("key", now.Add(61*time.Second)); !d.Allowed {
		t.Fatalf("check after window slide should be allowed: %+v", d)
	}
}

func TestCheck_HourlyCap(t *testing.T) {
	l := NewLimiter(1000, 100)
	now := time.Now()

	// Spread 100 requests over the hour so the minute cap never trips.
	for i := 0; i < 100; i++ {
		d := l.checkAt("key", now.Add(time.Duration(i)*30*time.Second))
		if !d.Allowed {
			t.Fatalf("check %d denied early: %+v", i+1, d)
		}
	}

	d := l.checkAt("key", now.Add(51*time.Minute))
	if d.Allowed {
		t.Fatal("101st check within the hour should be denied")
	}
	if d.Reason != ReasonHourly {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonHourly)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter should be positive, got %v", d.RetryAfter)
	}
}

// When both windows would trip simultaneously, the hourly reason wins because
// the hourly check runs first. The order is a behavioural contract.
func TestCheck_HourlyReasonTakesPrecedence(t *testing.T) {
	// Equal caps filled inside one minute exceed both windows at once.
	l := NewLimiter(5, 5)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if d := l.checkAt("key", now.Add(time.Duration(i)*time.Second)); !d.Allowed {
			t.Fatalf("setup check %d denied: %+v", i+1, d)
		}
	}
	d := l.checkAt("key", now.Add(6*time.Second))
	if d.Allowed {
		t.Fatal("check over both caps should be denied")
	}
	if d.Reason != ReasonHourly {
		t.Errorf("reason when both caps trip: got %q, want %q", d.Reason, ReasonHourly)
	}
}

func TestCheck_ExemptSendersAlwaysAllowed(t *testing.T) {
	l := NewLimiter(2, 5)
	l.SetExempt([]string{"+60 11-222 3344"})
	now := time.Now()

	for i := 0; i < 50; i++ {
		// Differently formatted, same number.
		d := l.checkAt("60112223344", now.Add(time.Duration(i)*time.Millisecond))
		if !d.Allowed {
			t.Fatalf("exempt sender denied on check %d: %+v", i+1, d)
		}
	}
}

func TestSetExempt_ReplacesList(t *testing.T) {
	l := NewLimiter(1, 5)
	l.SetExempt([]string{"111111111"})
	now := time.Now()

	l.checkAt("222222222", now)
	if d := l.checkAt("222222222", now.Add(time.Second)); d.Allowed {
		t.Fatal("non-exempt sender should hit the cap")
	}

	// After the refresh the second sender is exempt and the first is not.
	l.SetExempt([]string{"222222222"})
	if d := l.checkAt("222222222", now.Add(2*time.Second)); !d.Allowed {
		t.Fatal("newly exempt sender should be allowed")
	}
	l.checkAt("111111111", now.Add(3*time.Second))
	if d := l.checkAt("111111111", now.Add(4*time.Second)); d.Allowed {
		t.Fatal("removed sender should no longer be exempt")
	}
}

func TestSetExempt_ConcurrentWithChecks(t *testing.T) {
	// Swapping the exemption list while checks are in flight must be safe
	// (run with -race).
	l := NewLimiter(1000, 10000)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		lists := [][]string{{"111"}, {"222", "333"}, nil}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				l.SetExempt(lists[i%len(lists)])
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.Check("111")
				l.Check("444")
			}
		}()
	}
	// Wait for checkers, then stop the swapper.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done
}

func TestSweepIdle(t *testing.T) {
	l := NewLimiter(20, 100)
	now := time.Now()

	l.checkAt("stale", now)
	l.checkAt("fresh", now.Add(90*time.Minute))

	removed := l.SweepIdle(now.Add(2 * time.Hour))
	if removed != 1 {
		t.Errorf("sweep removed %d entries, want 1", removed)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+60 12-345 6789", "60123456789"},
		{"60123456789", "60123456789"},
		{"(601) 2345-6789", "60123456789"},
		{"  staff-main  ", "staff-main"}, // no digits: trimmed verbatim
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
