package syncclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
)

// fakeClient is an in-memory server. Tests tweak its fields under mu.
type fakeClient struct {
	mu sync.Mutex

	users   []model.Entity
	cells   map[sheet.TableID]sheet.Snapshot
	admin   bool
	nextID  int64
	fetches int
	saves   map[string]int // request id -> calls

	fetchErr error
	saveErr  func(attempt int) error
	loginErr error

	// fetchGate, when set, blocks FetchTable after it has read the server
	// state until a value is received; fetchStarted is signalled first.
	fetchGate    chan struct{}
	fetchStarted chan struct{}

	loggedOut bool
}

func newFakeClient(sellers ...string) *fakeClient {
	c := &fakeClient{
		cells: map[sheet.TableID]sheet.Snapshot{
			sheet.TablePortabilidade: {},
			sheet.TableNovo:          {},
		},
		admin: true,
		saves: make(map[string]int),
	}
	for _, name := range sellers {
		c.addUser(name, model.RoleUser)
	}
	c.addUser("admin", model.RoleAdmin)
	return c
}

func (c *fakeClient) addUser(name string, role model.Role) model.Entity {
	c.nextID++
	e := model.Entity{ID: c.nextID, Username: name, Role: role, Position: model.DefaultPosition}
	c.users = append(c.users, e)
	return e
}

func (c *fakeClient) set(table sheet.TableID, entity string, f sheet.Field, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells[table].Set(entity, f, v)
}

func (c *fakeClient) Login(ctx context.Context, username, password string) (types.LoginResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loginErr != nil {
		return types.LoginResponse{}, c.loginErr
	}
	return types.LoginResponse{Success: true, User: username, IsAdmin: c.admin}, nil
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

func (c *fakeClient) Me(ctx context.Context) (types.MeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedOut {
		return types.MeResponse{}, nil
	}
	return types.MeResponse{LoggedIn: true, User: "admin", IsAdmin: c.admin}, nil
}

func (c *fakeClient) FetchTable(ctx context.Context, table sheet.TableID) (types.TableResponse, error) {
	c.mu.Lock()
	c.fetches++
	if c.fetchErr != nil {
		err := c.fetchErr
		c.mu.Unlock()
		return types.TableResponse{}, err
	}
	resp := types.TableResponse{
		Employees: append([]model.Entity(nil), c.users...),
		Cells:     c.cells[table].Clone(),
	}
	gate, started := c.fetchGate, c.fetchStarted
	c.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return types.TableResponse{}, &TransportError{Op: "fetch table", Err: ctx.Err()}
		}
	}
	return resp, nil
}

func (c *fakeClient) SaveCell(ctx context.Context, table sheet.TableID, cell sheet.Cell, requestID string) (types.CellResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves[requestID]++
	if c.saveErr != nil {
		if err := c.saveErr(c.saves[requestID]); err != nil {
			return types.CellResponse{}, err
		}
	}
	if c.saves[requestID] > 1 {
		return types.CellResponse{Success: true, Duplicate: true}, nil
	}
	c.cells[table].Set(cell.Entity, cell.Field, cell.Value)
	return types.CellResponse{Success: true}, nil
}

func (c *fakeClient) CreateUser(ctx context.Context, req types.CreateUserRequest) (model.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.users {
		if u.Username == req.Username {
			return model.Entity{}, &ServerRejected{Op: "create user", Status: http.StatusConflict, Message: "exists"}
		}
	}
	return c.addUser(req.Username, model.Role(req.Role)), nil
}

func (c *fakeClient) DeleteUser(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, u := range c.users {
		if u.ID == id {
			c.users = append(c.users[:i], c.users[i+1:]...)
			return nil
		}
	}
	return &ServerRejected{Op: "delete user", Status: http.StatusNotFound}
}

func (c *fakeClient) ChangePassword(ctx context.Context, id int64, newPassword string) error {
	return nil
}

func (c *fakeClient) saveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.saves {
		n += v
	}
	return n
}

func (c *fakeClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

func (t *manualTicker) tick() { t.c <- time.Now() }

// eventually polls cond for up to two seconds.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
