// Package syncclient keeps a local, optimistically edited copy of the sales
// grid in step with the server.
//
// A Session owns everything a logged-in user has: the loaded tables, the save
// dispatcher, the reconciliation loop and the notice slot. All state changes
// happen under one mutex; network calls are made outside it.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/salesgrid/internal/adapters/mq/queue"
	"github.com/okian/salesgrid/internal/adapters/mq/worker"
	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/syncclient/notice"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// Session is the client state of one login.
type Session struct {
	mu        sync.Mutex
	client    Client
	principal model.Principal
	policy    access.Policy
	tables    map[sheet.TableID]*grid.Table
	current   sheet.TableID
	expired   bool
	closed    bool

	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	poolCancel context.CancelFunc

	notices  *notice.Slot
	listener func(grid.View)

	loopCancel      context.CancelFunc
	loopDone        chan struct{}
	refreshInterval time.Duration
	newTicker       func(time.Duration) Ticker

	saveWorkers   int
	saveQueueSize int
	saveRetries   int
	saveBackoff   time.Duration
	noticeTTL     time.Duration
	now           func() time.Time

	logger logger.Logger
}

// Login authenticates against the server and starts a session.
func Login(ctx context.Context, c Client, username, password string, opts ...Option) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "required"}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Reason: "required"}
	}

	resp, err := c.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &ServerRejected{Op: "login", Status: 401, Message: resp.Message}
	}
	if resp.User != "" {
		username = resp.User
	}
	return newSession(c, model.Principal{Username: username, Admin: resp.IsAdmin}, opts...), nil
}

// Resume starts a session on top of credentials the client already holds,
// such as a session cookie. It fails with ErrSessionExpired when the server
// does not recognise them.
func Resume(ctx context.Context, c Client, opts ...Option) (*Session, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	if !me.LoggedIn || me.User == "" {
		return nil, ErrSessionExpired
	}
	return newSession(c, model.Principal{Username: me.User, Admin: me.IsAdmin}, opts...), nil
}

func newSession(c Client, p model.Principal, opts ...Option) *Session {
	s := &Session{
		client:          c,
		principal:       p,
		policy:          access.RolePolicy{},
		tables:          make(map[sheet.TableID]*grid.Table),
		refreshInterval: defaultRefreshInterval,
		newTicker:       newTimeTicker,
		saveWorkers:     defaultSaveWorkers,
		saveQueueSize:   defaultSaveQueueSize,
		saveRetries:     defaultSaveRetries,
		saveBackoff:     defaultSaveBackoff,
		noticeTTL:       defaultNoticeTTL,
		now:             time.Now,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.notices = notice.NewSlot(notice.WithTTL(s.noticeTTL), notice.WithClock(s.now))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.saveQueueSize))
	s.pool = worker.NewPool(s.saveWorkers, s.queue,
		worker.SenderFunc(s.send), saveReporter{s: s},
		worker.WithRetries(s.saveRetries),
		worker.WithBackoff(s.saveBackoff),
		worker.WithRetryable(IsTransport),
		worker.WithLogger(s.logger.Named("saves")),
	)
	poolCtx, cancel := context.WithCancel(context.Background())
	s.poolCancel = cancel
	s.pool.Start(poolCtx)

	s.logger.Info(context.Background(), "session started",
		logger.String("user", p.Username), logger.Bool("admin", p.Admin))
	return s
}

// Principal returns the logged-in identity.
func (s *Session) Principal() model.Principal { return s.principal }

// Current returns the table shown by View, empty before the first Load.
func (s *Session) Current() sheet.TableID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Expired reports whether the server rejected the session's credentials.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Notice returns the visible user notice, if any.
func (s *Session) Notice() (notice.Notice, bool) { return s.notices.Current() }

// Load fetches table and makes it current. On failure every loaded table is
// left as it was.
func (s *Session) Load(ctx context.Context, table string) error {
	id, err := sheet.ParseTable(table)
	if err != nil {
		verr := &ValidationError{Field: "table", Reason: err.Error(), Err: err}
		s.postError("Tabela inválida", verr)
		return verr
	}
	if err := s.refresh(ctx, id); err != nil {
		s.postError("Erro ao carregar dados", err)
		return err
	}

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	s.changed(id)
	return nil
}

// Refresh re-fetches the current table. Errors leave the state untouched and
// never post a notice.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	if id == "" {
		return ErrNotLoaded
	}
	if err := s.refresh(ctx, id); err != nil {
		return err
	}
	s.changed(id)
	return nil
}

func (s *Session) refresh(ctx context.Context, id sheet.TableID) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	t := s.tables[id]
	if t == nil {
		t = grid.New(id)
	}
	mark := t.Mark()
	s.mu.Unlock()

	start := time.Now()
	resp, err := s.client.FetchTable(ctx, id)
	metrics.RecordRefreshLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRefresh(string(id), metrics.OutcomeFailed)
		if errors.Is(err, ErrSessionExpired) {
			s.expire()
		}
		return err
	}

	entities := make([]model.Entity, 0, len(resp.Employees))
	for _, e := range resp.Employees {
		if e.IsAdmin() {
			continue
		}
		entities = append(entities, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if existing := s.tables[id]; existing != nil {
		t = existing
	} else {
		s.tables[id] = t
	}
	res := t.ApplyRefresh(mark, entities, resp.Cells.Sanitize())

	metrics.RecordRefresh(string(id), metrics.OutcomeOK)
	metrics.UpdateTableEntities(string(id), len(t.Keys()))
	s.logger.Debug(ctx, "table refreshed",
		logger.String("table", string(id)),
		logger.Int("entities", len(t.Keys())),
		logger.Int("added", len(res.Added)),
		logger.Int("preserved", len(res.Preserved)),
	)
	return nil
}

// Edit applies raw to one cell of the current table and queues its save.
// Raw input that is not a number becomes 0.
func (s *Session) Edit(ctx context.Context, entity string, field sheet.Field, raw string) (grid.Edit, error) {
	s.mu.Lock()
	t, err := s.currentLocked()
	if err != nil {
		s.mu.Unlock()
		return grid.Edit{}, err
	}
	if _, ferr := sheet.ParseField(string(field)); ferr != nil {
		s.mu.Unlock()
		verr := &ValidationError{Field: "field", Reason: ferr.Error(), Err: ferr}
		s.postError("Dia inválido", verr)
		return grid.Edit{}, verr
	}
	if !s.policy.CanEdit(s.principal, t.ID(), entity, field) {
		s.mu.Unlock()
		verr := &ValidationError{
			Field:  "cell",
			Reason: fmt.Sprintf("%s may not edit row %s", s.principal.Username, entity),
			Err:    ErrForbidden,
		}
		s.postError("Sem permissão", verr)
		return grid.Edit{}, verr
	}
	e, err := t.Edit(entity, field, sheet.ParseValue(raw))
	if err != nil {
		s.mu.Unlock()
		verr := &ValidationError{Field: "entity", Reason: err.Error(), Err: err}
		s.postError("Vendedor desconhecido", verr)
		return grid.Edit{}, verr
	}
	s.updatePendingLocked()
	s.mu.Unlock()

	s.enqueue(ctx, e)
	s.changed(e.Table)
	return e, nil
}

// Retry sends a failed cell again.
func (s *Session) Retry(ctx context.Context, entity string, field sheet.Field) (grid.Edit, error) {
	s.mu.Lock()
	t, err := s.currentLocked()
	if err != nil {
		s.mu.Unlock()
		return grid.Edit{}, err
	}
	e, err := t.Retry(entity, field)
	if err != nil {
		s.mu.Unlock()
		return grid.Edit{}, &ValidationError{Field: "cell", Reason: err.Error(), Err: err}
	}
	s.updatePendingLocked()
	s.mu.Unlock()

	s.enqueue(ctx, e)
	s.changed(e.Table)
	return e, nil
}

// Discard rolls a failed cell back to the last value seen on the server.
func (s *Session) Discard(entity string, field sheet.Field) error {
	s.mu.Lock()
	t, err := s.currentLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := t.Discard(entity, field); err != nil {
		s.mu.Unlock()
		return &ValidationError{Field: "cell", Reason: err.Error(), Err: err}
	}
	id := t.ID()
	s.mu.Unlock()

	s.changed(id)
	return nil
}

// FailedCells lists the cells of the current table whose save failed.
func (s *Session) FailedCells() []grid.CellRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tables[s.current]; t != nil {
		return t.FailedCells()
	}
	return nil
}

// Pending returns the number of cells waiting for a save outcome.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// View projects the current table for the logged-in user.
func (s *Session) View() (grid.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[s.current]
	if t == nil {
		return grid.View{}, ErrNotLoaded
	}
	return t.View(s.principal, s.policy), nil
}

// Logout stops the loop, drains queued saves, ends the server session and
// drops all local state. Saves still running when the drain times out are
// not aborted on the server.
func (s *Session) Logout(ctx context.Context) error {
	s.StopLoop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := s.pool.Shutdown(drainCtx); err != nil {
		s.logger.Warn(ctx, "save dispatcher did not drain", logger.Error(err))
	}
	s.poolCancel()

	err := s.client.Logout(ctx)

	s.mu.Lock()
	s.tables = make(map[sheet.TableID]*grid.Table)
	s.current = ""
	s.mu.Unlock()
	s.notices.Dismiss()
	metrics.UpdatePendingCells(0)

	s.logger.Info(ctx, "session closed", logger.String("user", s.principal.Username))
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	return nil
}

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.expired {
		return ErrSessionExpired
	}
	return nil
}

func (s *Session) currentLocked() (*grid.Table, error) {
	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	t := s.tables[s.current]
	if t == nil {
		return nil, ErrNotLoaded
	}
	return t, nil
}

func (s *Session) expire() {
	s.mu.Lock()
	s.expired = true
	cancel := s.loopCancel
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.logger.Warn(context.Background(), "session expired", logger.String("user", s.principal.Username))
}

func (s *Session) pendingLocked() int {
	n := 0
	for _, t := range s.tables {
		n += t.Count(grid.Pending)
	}
	return n
}

func (s *Session) updatePendingLocked() {
	metrics.UpdatePendingCells(s.pendingLocked())
}

// changed hands a fresh view of id to the listener when id is current.
func (s *Session) changed(id sheet.TableID) {
	if s.listener == nil {
		return
	}
	s.mu.Lock()
	t := s.tables[id]
	if t == nil || id != s.current {
		s.mu.Unlock()
		return
	}
	v := t.View(s.principal, s.policy)
	s.mu.Unlock()
	s.listener(v)
}

func (s *Session) postError(what string, err error) {
	s.notices.Post(notice.Error, fmt.Sprintf("%s: %v", what, err))
}
