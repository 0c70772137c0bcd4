// Package notice holds the single user-facing message of a client session.
package notice

import (
	"sync"
	"time"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 4 * time.Second

// Kind classifies a notice.
type Kind int

// Notice kinds.
const (
	Info Kind = iota
	Error
)

func (k Kind) String() string {
	if k == Error {
		return "error"
	}
	return "info"
}

// Notice is a posted message.
type Notice struct {
	Kind   Kind
	Text   string
	Posted time.Time
}

// Slot keeps at most one notice. Posting replaces the current one and a
// notice disappears once its TTL has elapsed on the slot's clock.
type Slot struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	current *Notice
}

// Option configures a Slot.
type Option func(*Slot)

// WithTTL sets the visibility period.
func WithTTL(d time.Duration) Option {
	return func(s *Slot) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Slot) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSlot returns an empty slot.
func NewSlot(opts ...Option) *Slot {
	s := &Slot{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post shows text, replacing whatever was visible.
func (s *Slot) Post(kind Kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Notice{Kind: kind, Text: text, Posted: s.now()}
}

// Current returns the visible notice, if any.
func (s *Slot) Current() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notice{}, false
	}
	if s.now().Sub(s.current.Posted) >= s.ttl {
		s.current = nil
		return Notice{}, false
	}
	return *s.current, true
}

// Dismiss clears the slot.
func (s *Slot) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
