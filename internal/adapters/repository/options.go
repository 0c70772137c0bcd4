package repository

import (
	"github.com/okian/salesgrid/pkg/logger"
)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithPoolSize sets the number of pooled connections.
func WithPoolSize(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}
