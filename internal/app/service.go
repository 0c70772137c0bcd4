// Package service implements the salesgrid server: accounts and sessions,
// the two sales sheets, weekly archiving and the daily summary scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/okian/salesgrid/internal/adapters/repository"
	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/dedupe"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultSessionTTL        = 12 * time.Hour
	defaultDedupeSize        = 50_000
	defaultSchedulerInterval = time.Minute
	defaultSummaryHour       = 23
	defaultSummaryMinute     = 59
	minPasswordLength        = 4
)

// Service implements the API dependencies for the sales grid.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	deduper dedupe.Deduper
	policy  access.Policy

	sessionTTL        time.Duration
	dedupeSize        int
	adminUsername     string
	adminPassword     string
	archiveSecret     string
	summaryHour       int
	summaryMinute     int
	schedulerInterval time.Duration
	bcryptCost        int
	now               func() time.Time

	started   bool
	startedAt time.Time
	stopCh    chan struct{}
	schedDone chan struct{}

	summaryMu   sync.Mutex
	lastSummary string // date of the last recorded daily summary

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSessionTTL sets how long a login stays valid.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithDedupeSize sets the size of the request id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithAdmin sets the account created on start when no admin exists.
func WithAdmin(username, password string) Option {
	return func(s *Service) {
		if username != "" && password != "" {
			s.adminUsername, s.adminPassword = username, password
		}
	}
}

// WithArchiveSecret enables archiving through the X-SECRET-KEY header.
func WithArchiveSecret(secret string) Option {
	return func(s *Service) { s.archiveSecret = secret }
}

// WithDailySummaryAt sets the local time after which the day's sales are stored.
func WithDailySummaryAt(hour, minute int) Option {
	return func(s *Service) {
		if hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
			s.summaryHour, s.summaryMinute = hour, minute
		}
	}
}

// WithSchedulerInterval sets how often scheduled work is checked.
func WithSchedulerInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.schedulerInterval = d
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPolicy replaces the access policy.
func WithPolicy(p access.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. The service owns store and closes
// it on Stop.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:             store,
		policy:            access.RolePolicy{},
		sessionTTL:        defaultSessionTTL,
		dedupeSize:        defaultDedupeSize,
		summaryHour:       defaultSummaryHour,
		summaryMinute:     defaultSummaryMinute,
		schedulerInterval: defaultSchedulerInterval,
		bcryptCost:        bcrypt.DefaultCost,
		now:               time.Now,
		logger:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start seeds the admin account and starts the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting salesgrid service...")

	if err := s.seedAdmin(ctx); err != nil {
		return err
	}

	s.stopCh = make(chan struct{})
	s.schedDone = make(chan struct{})
	go s.runScheduler(ctx, s.stopCh, s.schedDone)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "salesgrid service started",
		logger.Duration("sessionTTL", s.sessionTTL),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("schedulerInterval", s.schedulerInterval),
	)
	return nil
}

// Stop stops the scheduler and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping salesgrid service...")

	close(s.stopCh)
	<-s.schedDone

	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(context.Background(), "salesgrid service stopped")
}

func (s *Service) seedAdmin(ctx context.Context) error {
	if s.adminUsername == "" {
		return nil
	}
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return nil
	}
	hash, err := s.hash(s.adminPassword)
	if err != nil {
		return err
	}
	_, err = s.store.CreateUser(ctx, model.Entity{Username: s.adminUsername, Role: model.RoleAdmin}, hash)
	if err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info(ctx, "admin account created", logger.String("username", s.adminUsername))
	return nil
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) (types.StatsResponse, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return types.StatsResponse{}, err
	}
	sessions, err := s.store.CountSessions(ctx, s.now())
	if err != nil {
		return types.StatsResponse{}, err
	}

	out := types.StatsResponse{
		Users:          len(users),
		ActiveSessions: sessions,
		GrandTotals:    make(map[string]float64, len(sheet.Tables())),
		DedupeSize:     s.deduper.Size(),
	}
	for _, u := range users {
		if !u.IsAdmin() {
			out.Sellers++
		}
	}
	for _, t := range sheet.Tables() {
		cells, err := s.store.LoadCells(ctx, t)
		if err != nil {
			return types.StatsResponse{}, err
		}
		out.GrandTotals[string(t)] = sheet.ComputeTotals(cells).GrandTotal()
	}

	s.mu.RLock()
	if s.started {
		out.UptimeSeconds = s.now().Sub(s.startedAt).Seconds()
	}
	s.mu.RUnlock()

	metrics.UpdateActiveSessions(sessions)
	return out, nil
}
