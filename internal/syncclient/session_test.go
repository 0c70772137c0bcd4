package syncclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/sheet"
	. "github.com/smartystreets/goconvey/convey"
)

var errNetwork = errors.New("connection refused")

func login(c *fakeClient, opts ...Option) *Session {
	base := []Option{WithSaveBackoff(time.Millisecond), WithSaveRetries(2)}
	s, err := Login(context.Background(), c, "admin", "secret", append(base, opts...)...)
	So(err, ShouldBeNil)
	return s
}

func cellState(s *Session, entity string, f sheet.Field) grid.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.tables[s.current].State(entity, f)
	return st
}

func value(s *Session, entity string, f sheet.Field) float64 {
	v, err := s.View()
	So(err, ShouldBeNil)
	for _, r := range v.Rows {
		if r.Entity.Username != entity {
			continue
		}
		for _, c := range r.Cells {
			if c.Field == f {
				return c.Amount.Value
			}
		}
	}
	return -1
}

func keys(s *Session) []string {
	v, err := s.View()
	So(err, ShouldBeNil)
	out := make([]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		out = append(out, r.Entity.Username)
	}
	return out
}

func TestLogin(t *testing.T) {
	Convey("Given a client", t, func() {
		c := newFakeClient("ana")
		ctx := context.Background()

		Convey("When the username is blank", func() {
			_, err := Login(ctx, c, "  ", "x")

			Convey("Then nothing is sent and a validation error is returned", func() {
				var verr *ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Field, ShouldEqual, "username")
			})
		})

		Convey("When the server rejects the credentials", func() {
			c.loginErr = &ServerRejected{Op: "login", Status: http.StatusUnauthorized, Message: "bad credentials"}
			_, err := Login(ctx, c, "ana", "wrong")

			Convey("Then the rejection is returned and reads as an expired session", func() {
				var rej *ServerRejected
				So(errors.As(err, &rej), ShouldBeTrue)
				So(rej.Message, ShouldEqual, "bad credentials")
				So(errors.Is(err, ErrSessionExpired), ShouldBeTrue)
			})
		})

		Convey("When an existing login is resumed", func() {
			s, err := Resume(ctx, c)

			Convey("Then the principal comes from the server", func() {
				So(err, ShouldBeNil)
				So(s.Principal().Username, ShouldEqual, "admin")
				So(s.Principal().Admin, ShouldBeTrue)
				So(s.Logout(ctx), ShouldBeNil)

				_, err = Resume(ctx, c)
				So(errors.Is(err, ErrSessionExpired), ShouldBeTrue)
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a logged-in admin", t, func() {
		c := newFakeClient("ana", "bia")
		c.set(sheet.TableNovo, "ana", sheet.Monday, 120)
		s := login(c)
		ctx := context.Background()
		defer s.Logout(ctx)

		Convey("When a table is loaded", func() {
			So(s.Load(ctx, "novo"), ShouldBeNil)

			Convey("Then sellers are rows in server order and admins are not", func() {
				So(s.Current(), ShouldEqual, sheet.TableNovo)
				So(keys(s), ShouldResemble, []string{"ana", "bia"})
				So(value(s, "ana", sheet.Monday), ShouldEqual, 120)
			})

			Convey("Then a failing reload keeps the last good state", func() {
				c.mu.Lock()
				c.fetchErr = &TransportError{Op: "fetch table", Err: errNetwork}
				c.mu.Unlock()

				err := s.Load(ctx, "novo")
				So(IsTransport(err), ShouldBeTrue)
				So(keys(s), ShouldResemble, []string{"ana", "bia"})
				So(value(s, "ana", sheet.Monday), ShouldEqual, 120)
				_, posted := s.Notice()
				So(posted, ShouldBeTrue)
			})
		})

		Convey("When the first load fails", func() {
			c.fetchErr = &TransportError{Op: "fetch table", Err: errNetwork}
			err := s.Load(ctx, "")

			Convey("Then no table becomes current", func() {
				So(err, ShouldNotBeNil)
				_, verr := s.View()
				So(verr, ShouldEqual, ErrNotLoaded)
			})
		})

		Convey("When an unknown table is requested", func() {
			err := s.Load(ctx, "usados")

			Convey("Then it is a validation error", func() {
				var verr *ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(errors.Is(err, sheet.ErrUnknownTable), ShouldBeTrue)
				So(c.fetchCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestEdit(t *testing.T) {
	Convey("Given a loaded table", t, func() {
		c := newFakeClient("ana", "bia")
		c.set(sheet.TablePortabilidade, "ana", sheet.Tuesday, 7)
		ctx := context.Background()

		Convey("When an admin edits a cell", func() {
			s := login(c)
			defer s.Logout(ctx)
			So(s.Load(ctx, ""), ShouldBeNil)

			e, err := s.Edit(ctx, "ana", sheet.Monday, "1.234,50")

			Convey("Then the value is parsed and visible at once", func() {
				So(err, ShouldBeNil)
				So(e.Value, ShouldEqual, 1234.5)
				So(value(s, "ana", sheet.Monday), ShouldEqual, 1234.5)
				v, _ := s.View()
				So(v.GrandTotal.Value, ShouldEqual, 1241.5)
			})

			Convey("Then the save reaches the server and the cell settles", func() {
				So(eventually(func() bool { return cellState(s, "ana", sheet.Monday) == grid.Synced }), ShouldBeTrue)
				c.mu.Lock()
				So(c.cells[sheet.TablePortabilidade].Get("ana", sheet.Monday), ShouldEqual, 1234.5)
				c.mu.Unlock()
				So(c.saveCalls(), ShouldEqual, 1)
			})
		})

		Convey("When the input is not a number", func() {
			s := login(c)
			defer s.Logout(ctx)
			So(s.Load(ctx, ""), ShouldBeNil)
			_, err := s.Edit(ctx, "ana", sheet.Tuesday, "abc")

			Convey("Then the cell becomes zero", func() {
				So(err, ShouldBeNil)
				So(value(s, "ana", sheet.Tuesday), ShouldEqual, 0)
			})
		})

		Convey("When a seller edits someone else's row", func() {
			c.admin = false
			s, err := Login(ctx, c, "ana", "pw")
			So(err, ShouldBeNil)
			defer s.Logout(ctx)
			So(s.Load(ctx, ""), ShouldBeNil)

			_, err = s.Edit(ctx, "bia", sheet.Monday, "5")

			Convey("Then it is refused before any state change", func() {
				So(errors.Is(err, ErrForbidden), ShouldBeTrue)
				So(value(s, "bia", sheet.Monday), ShouldEqual, 0)
				So(c.saveCalls(), ShouldEqual, 0)
				n, ok := s.Notice()
				So(ok, ShouldBeTrue)
				So(n.Text, ShouldContainSubstring, "Sem permissão")
			})

			Convey("Then their own row is editable", func() {
				_, err := s.Edit(ctx, "ana", sheet.Monday, "5")
				So(err, ShouldBeNil)
			})
		})

		Convey("When saves keep failing on the network", func() {
			c.saveErr = func(int) error { return &TransportError{Op: "save cell", Err: errNetwork} }
			s := login(c)
			defer s.Logout(ctx)
			So(s.Load(ctx, ""), ShouldBeNil)
			_, err := s.Edit(ctx, "ana", sheet.Tuesday, "50")
			So(err, ShouldBeNil)

			So(eventually(func() bool { return cellState(s, "ana", sheet.Tuesday) == grid.Failed }), ShouldBeTrue)

			Convey("Then the request was retried and the local value kept", func() {
				So(c.saveCalls(), ShouldEqual, 3)
				So(value(s, "ana", sheet.Tuesday), ShouldEqual, 50)
				So(s.FailedCells(), ShouldResemble, []grid.CellRef{{Entity: "ana", Field: sheet.Tuesday}})
				n, ok := s.Notice()
				So(ok, ShouldBeTrue)
				So(n.Text, ShouldContainSubstring, "Erro ao salvar ana (Ter)")
			})

			Convey("Then a retry after recovery settles the cell", func() {
				c.mu.Lock()
				c.saveErr = nil
				c.mu.Unlock()
				_, err := s.Retry(ctx, "ana", sheet.Tuesday)
				So(err, ShouldBeNil)
				So(eventually(func() bool { return cellState(s, "ana", sheet.Tuesday) == grid.Synced }), ShouldBeTrue)
				So(value(s, "ana", sheet.Tuesday), ShouldEqual, 50)
			})

			Convey("Then discarding restores the server value", func() {
				So(s.Discard("ana", sheet.Tuesday), ShouldBeNil)
				So(value(s, "ana", sheet.Tuesday), ShouldEqual, 7)
				So(s.FailedCells(), ShouldBeEmpty)
			})
		})

		Convey("When the server rejects a save", func() {
			c.saveErr = func(int) error { return &ServerRejected{Op: "save cell", Status: http.StatusBadRequest} }
			s := login(c)
			defer s.Logout(ctx)
			So(s.Load(ctx, ""), ShouldBeNil)
			_, _ = s.Edit(ctx, "ana", sheet.Friday, "9")

			Convey("Then the cell fails without retries", func() {
				So(eventually(func() bool { return cellState(s, "ana", sheet.Friday) == grid.Failed }), ShouldBeTrue)
				So(c.saveCalls(), ShouldEqual, 1)
			})
		})
	})
}

func TestRefreshDuringEdit(t *testing.T) {
	Convey("Given [A B] with all cells zero", t, func() {
		c := newFakeClient("A", "B")
		s := login(c)
		ctx := context.Background()
		defer s.Logout(ctx)
		So(s.Load(ctx, ""), ShouldBeNil)

		Convey("When a refresh is in flight while A.monday is edited to 100", func() {
			c.mu.Lock()
			c.fetchGate = make(chan struct{})
			c.fetchStarted = make(chan struct{}, 1)
			c.addUser("C", "user")
			c.saveErr = func(int) error { return &TransportError{Op: "save cell", Err: errNetwork} }
			gate, started := c.fetchGate, c.fetchStarted
			c.mu.Unlock()

			done := make(chan error, 1)
			go func() { done <- s.Refresh(ctx) }()
			<-started

			_, err := s.Edit(ctx, "A", sheet.Monday, "100")
			So(err, ShouldBeNil)
			close(gate)
			So(<-done, ShouldBeNil)

			Convey("Then the stale response does not revert the edit and C is appended", func() {
				So(value(s, "A", sheet.Monday), ShouldEqual, 100)
				v, _ := s.View()
				So(v.GrandTotal.Value, ShouldEqual, 100)
				So(keys(s), ShouldResemble, []string{"A", "B", "C"})
			})
		})

		Convey("When the edit has settled before the next refresh", func() {
			_, err := s.Edit(ctx, "A", sheet.Monday, "100")
			So(err, ShouldBeNil)
			So(eventually(func() bool { return cellState(s, "A", sheet.Monday) == grid.Synced }), ShouldBeTrue)
			c.set(sheet.TablePortabilidade, "A", sheet.Monday, 0)
			So(s.Refresh(ctx), ShouldBeNil)

			Convey("Then the table converges to the server", func() {
				So(value(s, "A", sheet.Monday), ShouldEqual, 0)
			})
		})
	})
}

func TestMembership(t *testing.T) {
	Convey("Given an admin viewing [A B C]", t, func() {
		c := newFakeClient("A", "B", "C")
		s := login(c)
		ctx := context.Background()
		defer s.Logout(ctx)
		So(s.Load(ctx, ""), ShouldBeNil)

		Convey("When B is removed", func() {
			So(s.RemoveEntity(ctx, "B"), ShouldBeNil)

			Convey("Then the order is [A C]", func() {
				So(keys(s), ShouldResemble, []string{"A", "C"})
			})

			Convey("Then a lagging refresh still listing B does not bring it back", func() {
				c.mu.Lock()
				c.users = append(c.users, c.users[0])
				c.users[len(c.users)-1].Username = "B"
				c.mu.Unlock()
				So(s.Refresh(ctx), ShouldBeNil)
				So(keys(s), ShouldResemble, []string{"A", "C"})
			})
		})

		Convey("When a seller is added", func() {
			e, err := s.AddEntity(ctx, NewEntity{Username: "D", Password: "pw"})

			Convey("Then it is appended with a zero row", func() {
				So(err, ShouldBeNil)
				So(e.ID, ShouldBeGreaterThan, 0)
				So(keys(s), ShouldResemble, []string{"A", "B", "C", "D"})
				So(value(s, "D", sheet.Friday), ShouldEqual, 0)
			})
		})

		Convey("When an account with a taken name is added", func() {
			_, err := s.AddEntity(ctx, NewEntity{Username: "A", Password: "pw"})

			Convey("Then the conflict is surfaced and the order is unchanged", func() {
				var rej *ServerRejected
				So(errors.As(err, &rej), ShouldBeTrue)
				So(rej.Status, ShouldEqual, http.StatusConflict)
				So(keys(s), ShouldResemble, []string{"A", "B", "C"})
			})
		})

		Convey("When removing a key that is not displayed", func() {
			err := s.RemoveEntity(ctx, "Z")

			Convey("Then nothing is sent", func() {
				So(errors.Is(err, grid.ErrUnknownEntity), ShouldBeTrue)
			})
		})

		Convey("When a password is changed without a new value", func() {
			err := s.ChangePassword(ctx, "A", "")

			Convey("Then it is a validation error", func() {
				var verr *ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(s.ChangePassword(ctx, "A", "new-secret"), ShouldBeNil)
			})
		})
	})

	Convey("Given a seller session", t, func() {
		c := newFakeClient("A", "B")
		c.admin = false
		ctx := context.Background()
		s, err := Login(ctx, c, "A", "pw")
		So(err, ShouldBeNil)
		defer s.Logout(ctx)
		So(s.Load(ctx, ""), ShouldBeNil)

		Convey("Then membership changes are forbidden", func() {
			So(errors.Is(s.RemoveEntity(ctx, "B"), ErrForbidden), ShouldBeTrue)
			_, err := s.AddEntity(ctx, NewEntity{Username: "X", Password: "pw"})
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)
			So(errors.Is(s.ChangePassword(ctx, "B", "pw"), ErrForbidden), ShouldBeTrue)
			So(keys(s), ShouldResemble, []string{"A", "B"})
		})
	})
}

func TestLoop(t *testing.T) {
	Convey("Given a session with a manual ticker", t, func() {
		c := newFakeClient("A")
		ticker := newManualTicker()
		views := make(chan grid.View, 16)
		s := login(c,
			WithTicker(func(time.Duration) Ticker { return ticker }),
			WithListener(func(v grid.View) { views <- v }),
		)
		ctx := context.Background()
		defer s.Logout(ctx)

		So(s.StartLoop(ctx), ShouldEqual, ErrNotLoaded)
		So(s.Load(ctx, ""), ShouldBeNil)
		<-views
		So(s.StartLoop(ctx), ShouldBeNil)
		So(s.StartLoop(ctx), ShouldBeNil)
		So(s.Looping(), ShouldBeTrue)

		Convey("When the ticker fires", func() {
			c.mu.Lock()
			c.addUser("B", "user")
			c.mu.Unlock()
			ticker.tick()

			Convey("Then the table is re-fetched and the listener sees it", func() {
				v := <-views
				So(len(v.Rows), ShouldEqual, 2)
				So(c.fetchCount(), ShouldEqual, 2)
			})
		})

		Convey("When a background refresh fails", func() {
			c.mu.Lock()
			c.fetchErr = &TransportError{Op: "fetch table", Err: errNetwork}
			c.mu.Unlock()
			ticker.tick()
			So(eventually(func() bool { return c.fetchCount() == 2 }), ShouldBeTrue)

			Convey("Then the loop keeps running and posts no notice", func() {
				_, posted := s.Notice()
				So(posted, ShouldBeFalse)
				ticker.tick()
				So(eventually(func() bool { return c.fetchCount() == 3 }), ShouldBeTrue)
				So(keys(s), ShouldResemble, []string{"A"})
			})
		})

		Convey("When the server reports the session expired", func() {
			c.mu.Lock()
			c.fetchErr = &ServerRejected{Op: "fetch table", Status: http.StatusUnauthorized}
			c.mu.Unlock()
			ticker.tick()

			Convey("Then the session is unusable", func() {
				So(eventually(s.Expired), ShouldBeTrue)
				_, err := s.Edit(ctx, "A", sheet.Monday, "1")
				So(errors.Is(err, ErrSessionExpired), ShouldBeTrue)
			})

			Convey("Then the loop stops and releases its ticker", func() {
				So(eventually(s.Expired), ShouldBeTrue)
				So(s.Looping(), ShouldBeFalse)
				released := false
				select {
				case <-ticker.stopped:
					released = true
				case <-time.After(time.Second):
				}
				So(released, ShouldBeTrue)
			})
		})

		Convey("When the loop is stopped", func() {
			s.StopLoop()

			Convey("Then the ticker is released", func() {
				So(s.Looping(), ShouldBeFalse)
				released := false
				select {
				case <-ticker.stopped:
					released = true
				case <-time.After(time.Second):
				}
				So(released, ShouldBeTrue)
			})
		})
	})
}

func TestLogout(t *testing.T) {
	Convey("Given a session with a loaded table", t, func() {
		c := newFakeClient("A")
		s := login(c)
		ctx := context.Background()
		So(s.Load(ctx, ""), ShouldBeNil)
		_, err := s.Edit(ctx, "A", sheet.Monday, "3")
		So(err, ShouldBeNil)

		Convey("When logging out", func() {
			So(s.Logout(ctx), ShouldBeNil)

			Convey("Then queued saves were delivered and state is gone", func() {
				So(c.saveCalls(), ShouldEqual, 1)
				So(c.loggedOut, ShouldBeTrue)
				_, err := s.View()
				So(err, ShouldEqual, ErrNotLoaded)
				_, err = s.Edit(ctx, "A", sheet.Monday, "4")
				So(err, ShouldEqual, ErrClosed)
				So(s.Logout(ctx), ShouldBeNil)
			})
		})
	})
}
