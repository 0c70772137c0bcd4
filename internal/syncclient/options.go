package syncclient

import (
	"time"

	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/pkg/logger"
)

// Default session configuration constants.
const (
	defaultRefreshInterval = 30 * time.Second
	defaultSaveWorkers     = 4
	defaultSaveQueueSize   = 256
	defaultSaveRetries     = 3
	defaultSaveBackoff     = 500 * time.Millisecond
	defaultNoticeTTL       = 4 * time.Second
	drainTimeout           = 5 * time.Second
)

// Ticker is the tick source of the reconciliation loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

// Option configures a Session.
type Option func(*Session)

// WithRefreshInterval sets the reconciliation period.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithTicker replaces the ticker factory used by StartLoop.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(s *Session) {
		if fn != nil {
			s.newTicker = fn
		}
	}
}

// WithSaveWorkers sets how many saves may be in flight at once.
func WithSaveWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.saveWorkers = n
		}
	}
}

// WithSaveQueueSize bounds the number of saves waiting for a worker.
func WithSaveQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.saveQueueSize = n
		}
	}
}

// WithSaveRetries sets how often a save is retried after a transport error.
func WithSaveRetries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.saveRetries = n
		}
	}
}

// WithSaveBackoff sets the delay before the first retry.
func WithSaveBackoff(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.saveBackoff = d
		}
	}
}

// WithNoticeTTL sets how long notices stay visible.
func WithNoticeTTL(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.noticeTTL = d
		}
	}
}

// WithClock replaces time.Now for notices.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPolicy replaces the access policy.
func WithPolicy(p access.Policy) Option {
	return func(s *Session) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithListener registers a function called with a fresh view after every
// change to the current table. It runs outside the session lock.
func WithListener(fn func(grid.View)) Option {
	return func(s *Session) { s.listener = fn }
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
