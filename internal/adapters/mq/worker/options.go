package worker

import (
	"time"

	"github.com/okian/salesgrid/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetries sets how many times a retryable failure is retried.
func WithRetries(n int) Option {
	return func(w *InMemoryWorker) {
		if n >= 0 {
			w.retries = n
		}
	}
}

// WithBackoff sets the delay before the first retry; it doubles per attempt.
func WithBackoff(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// WithRetryable sets the predicate selecting errors worth retrying.
// Without it nothing is retried.
func WithRetryable(fn func(error) bool) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.retryable = fn
		}
	}
}

func withOnDone(fn func()) Option {
	return func(w *InMemoryWorker) { w.onDone = fn }
}
