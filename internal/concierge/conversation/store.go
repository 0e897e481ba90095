package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	conlang "github.com/capsulepod/concierge/internal/concierge/language"
)

// StoreConfig holds configuration for the conversation Store.
type StoreConfig struct {
	// TTL is the duration of inactivity after which a conversation is
	// considered expired. Expiry is evaluated lazily on every lookup and by
	// the background sweeper. Default: 1 hour.
	TTL time.Duration

	// MaxMessages is the maximum number of messages kept per conversation.
	// When exceeded, the oldest messages are dropped (FIFO). Default: 20.
	MaxMessages int

	// SweepInterval is the cadence of the background sweeper started by
	// StartSweeper. Default: 10 minutes.
	SweepInterval time.Duration
}

// DefaultStoreConfig returns a StoreConfig with the documented defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:           time.Hour,
		MaxMessages:   20,
		SweepInterval: 10 * time.Minute,
	}
}

// Store owns the map of active conversations. It is the only mutator of its
// entries and is safe for concurrent use; every exported method takes the
// store lock, so per-key mutations are atomic relative to concurrent access.
type Store struct {
	mu     sync.Mutex
	config StoreConfig
	convos map[string]*Conversation // key: sender key
}

// NewStore creates a Store with the given configuration.
func NewStore(cfg StoreConfig) *Store {
	def := DefaultStoreConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Store{
		config: cfg,
		convos: make(map[string]*Conversation),
	}
}

// GetOrCreate returns a snapshot of the conversation for key, creating a
// fresh one when none exists or when the existing entry has expired. Expiry
// here is the lazy half of the TTL contract; the sweeper is the other half
// and both share the expired predicate.
func (s *Store) GetOrCreate(key string) *Conversation {
	return s.getOrCreateAt(key, time.Now())
}

// getOrCreateAt is the time-injectable core of GetOrCreate (for testing).
func (s *Store) getOrCreateAt(key string, now time.Time) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convos[key]
	if c == nil || s.expired(c, now) {
		c = &Conversation{
			ID:           uuid.New().String(),
			SenderKey:    key,
			Language:     language.English,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		s.convos[key] = c
	}
	c.LastActiveAt = now
	return snapshot(c)
}

// AddMessage appends a message to the conversation for key, trims the buffer
// to MaxMessages (oldest dropped first), refreshes LastActiveAt, and, for
// user-authored text only, re-detects the conversation language. It returns a
// snapshot of the updated conversation.
func (s *Store) AddMessage(key, role, text string) *Conversation {
	return s.addMessageAt(key, role, text, time.Now())
}

func (s *Store) addMessageAt(key, role, text string, now time.Time) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.activeLocked(key, now)
	c.Messages = append(c.Messages, Message{Role: role, Content: text, Timestamp: now})
	if excess := len(c.Messages) - s.config.MaxMessages; excess > 0 {
		c.Messages = c.Messages[excess:]
	}
	if role == RoleUser {
		c.Language = conlang.Detect(text)
	}
	c.LastActiveAt = now
	return snapshot(c)
}

// IncrementUnknown bumps the unknown-streak counter for key and returns the
// new count.
func (s *Store) IncrementUnknown(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c := s.activeLocked(key, now)
	c.UnknownStreak++
	c.LastActiveAt = now
	return c.UnknownStreak
}

// ResetUnknown clears the unknown-streak counter for key.
func (s *Store) ResetUnknown(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.convos[key]; c != nil {
		c.UnknownStreak = 0
	}
}

// SetBookingState stores the opaque booking workflow sub-state for key.
// The store never inspects the value.
func (s *Store) SetBookingState(key string, state any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c := s.activeLocked(key, now)
	c.BookingState = state
	c.LastActiveAt = now
}

// Clear removes the conversation for key, if any.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convos, key)
}

// Len returns the number of conversations currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convos)
}

// SweepExpired removes every conversation whose last activity is older than
// the TTL relative to now and returns how many were removed. This bounds
// memory under sustained traffic independently of request volume.
//
// The lock is taken per key, not for the whole pass, so a large sweep never
// stalls inbound turns; each key is re-checked under the lock in case it was
// touched between the snapshot and the delete.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	keys := make([]string, 0, len(s.convos))
	for key := range s.convos {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		s.mu.Lock()
		if c := s.convos[key]; c != nil && s.expired(c, now) {
			delete(s.convos, key)
			removed++
		}
		s.mu.Unlock()
	}
	return removed
}

// StartSweeper runs SweepExpired on the configured interval until ctx is
// cancelled. Call it once from the process lifecycle, not per request.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.SweepExpired(time.Now()); n > 0 {
					slog.Debug("conversation sweep", "removed", n)
				}
			}
		}
	}()
}

// expired is the single TTL predicate shared by the lazy lookup path and the
// background sweep, so the two can never disagree about what counts as stale.
func (s *Store) expired(c *Conversation, now time.Time) bool {
	return now.Sub(c.LastActiveAt) > s.config.TTL
}

// activeLocked returns the live entry for key, replacing an expired one with
// a fresh conversation. Must be called with mu held.
func (s *Store) activeLocked(key string, now time.Time) *Conversation {
	c := s.convos[key]
	if c == nil || s.expired(c, now) {
		c = &Conversation{
			ID:           uuid.New().String(),
			SenderKey:    key,
			Language:     language.English,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		s.convos[key] = c
	}
	return c
}

// snapshot returns a deep copy of a conversation so callers can read it
// without holding the store lock.
func snapshot(c *Conversation) *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}
