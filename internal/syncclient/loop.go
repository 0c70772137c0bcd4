package syncclient

import (
	"context"
	"errors"

	"github.com/okian/salesgrid/pkg/logger"
)

// StartLoop re-fetches the current table every refresh interval until
// StopLoop, Logout, ctx cancellation or session expiry. Starting a running
// loop is a no-op. Failed refreshes are logged and skipped.
func (s *Session) StartLoop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.current == "" {
		return ErrNotLoaded
	}
	if s.loopCancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.loopCancel, s.loopDone = cancel, done
	go s.loop(loopCtx, s.newTicker(s.refreshInterval), done)

	s.logger.Info(ctx, "reconciliation loop started", logger.Duration("interval", s.refreshInterval))
	return nil
}

// StopLoop stops the loop and waits for a refresh in progress to finish.
// It must not be called from the view listener.
func (s *Session) StopLoop() {
	s.mu.Lock()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Looping reports whether the reconciliation loop is running.
func (s *Session) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopCancel != nil
}

func (s *Session) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			err := s.Refresh(ctx)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "background refresh failed", logger.Error(err))
			if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrClosed) {
				return
			}
		}
	}
}
