package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/salesgrid/internal/adapters/repository"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	. "github.com/smartystreets/goconvey/convey"
)

var _ repository.Store = (*repository.SQLiteStore)(nil)

func open(t *testing.T) *repository.SQLiteStore {
	store, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), repository.WithPoolSize(2))
	So(err, ShouldBeNil)
	Reset(func() { _ = store.Close() })
	return store
}

func TestUsers(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := open(t)

		Convey("When accounts are created", func() {
			admin, err := store.CreateUser(ctx, model.Entity{Username: "root", Role: model.RoleAdmin}, "h0")
			So(err, ShouldBeNil)
			ana, err := store.CreateUser(ctx, model.Entity{Username: "ana", Email: "ana@x.io", Role: model.RoleUser, Position: 2}, "h1")
			So(err, ShouldBeNil)
			bia, err := store.CreateUser(ctx, model.Entity{Username: "bia", Role: model.RoleUser, Position: 1}, "h2")
			So(err, ShouldBeNil)

			Convey("Then ids are assigned and positions default", func() {
				So(admin.ID, ShouldBeGreaterThan, 0)
				So(admin.Position, ShouldEqual, model.DefaultPosition)
			})

			Convey("Then sellers are listed by position without admins", func() {
				sellers, err := store.ListSellers(ctx)
				So(err, ShouldBeNil)
				So(sellers, ShouldHaveLength, 2)
				So(sellers[0].Username, ShouldEqual, "bia")
				So(sellers[1].Username, ShouldEqual, "ana")

				all, err := store.ListUsers(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 3)

				n, err := store.CountAdmins(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then duplicate usernames and emails conflict", func() {
				_, err := store.CreateUser(ctx, model.Entity{Username: "ana", Role: model.RoleUser}, "x")
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				_, err = store.CreateUser(ctx, model.Entity{Username: "caio", Email: "ana@x.io", Role: model.RoleUser}, "x")
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("Then credentials and updates round-trip", func() {
				got, hash, err := store.Credentials(ctx, "ana")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, ana.ID)
				So(hash, ShouldEqual, "h1")

				So(store.SetPasswordHash(ctx, ana.ID, "h9"), ShouldBeNil)
				_, hash, _ = store.Credentials(ctx, "ana")
				So(hash, ShouldEqual, "h9")

				ana.Position = 7
				ana.Email = ""
				upd, err := store.UpdateUser(ctx, ana)
				So(err, ShouldBeNil)
				So(upd.Position, ShouldEqual, 7)
				So(upd.Email, ShouldEqual, "")

				_, _, err = store.Credentials(ctx, "nobody")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				_, err = store.UserByID(ctx, 999)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then deleting a seller drops its cells and sessions", func() {
				now := time.Now()
				So(store.SaveCell(ctx, sheet.TableNovo, sheet.Cell{Entity: "bia", Field: sheet.Monday, Value: 3}, now), ShouldBeNil)
				So(store.CreateSession(ctx, model.Session{Token: "t1", UserID: bia.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}), ShouldBeNil)

				gone, err := store.DeleteUser(ctx, bia.ID)
				So(err, ShouldBeNil)
				So(gone.Username, ShouldEqual, "bia")

				cells, err := store.LoadCells(ctx, sheet.TableNovo)
				So(err, ShouldBeNil)
				_, has := cells["bia"]
				So(has, ShouldBeFalse)

				_, _, err = store.SessionUser(ctx, "t1", now)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				_, err = store.DeleteUser(ctx, bia.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestSessions(t *testing.T) {
	Convey("Given a user with a live and an expired session", t, func() {
		ctx := context.Background()
		store := open(t)
		u, err := store.CreateUser(ctx, model.Entity{Username: "ana", Role: model.RoleUser}, "h")
		So(err, ShouldBeNil)
		now := time.Unix(1_800_000_000, 0)
		So(store.CreateSession(ctx, model.Session{Token: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}), ShouldBeNil)
		So(store.CreateSession(ctx, model.Session{Token: "old", UserID: u.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}), ShouldBeNil)

		Convey("Then only the live one resolves", func() {
			sess, user, err := store.SessionUser(ctx, "live", now)
			So(err, ShouldBeNil)
			So(user.Username, ShouldEqual, "ana")
			So(sess.ExpiresAt.Unix(), ShouldEqual, now.Add(time.Hour).Unix())

			_, _, err = store.SessionUser(ctx, "old", now)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			n, err := store.CountSessions(ctx, now)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("Then purge removes the expired one and logout the live one", func() {
			n, err := store.PurgeSessions(ctx, now)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			So(store.DeleteSession(ctx, "live"), ShouldBeNil)
			So(store.DeleteSession(ctx, "unknown"), ShouldBeNil)
			n, _ = store.CountSessions(ctx, now)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestCells(t *testing.T) {
	Convey("Given two sellers", t, func() {
		ctx := context.Background()
		store := open(t)
		for _, name := range []string{"ana", "bia"} {
			_, err := store.CreateUser(ctx, model.Entity{Username: name, Role: model.RoleUser}, "h")
			So(err, ShouldBeNil)
		}
		now := time.Now()

		Convey("When cells are written to both sheets", func() {
			So(store.SaveCell(ctx, sheet.TableNovo, sheet.Cell{Entity: "ana", Field: sheet.Monday, Value: 1}, now), ShouldBeNil)
			So(store.SaveCell(ctx, sheet.TableNovo, sheet.Cell{Entity: "ana", Field: sheet.Monday, Value: 2.5}, now), ShouldBeNil)
			So(store.SaveCell(ctx, sheet.TablePortabilidade, sheet.Cell{Entity: "ana", Field: sheet.Monday, Value: 9}, now), ShouldBeNil)

			Convey("Then the last write wins and sheets stay independent", func() {
				novo, err := store.LoadCells(ctx, sheet.TableNovo)
				So(err, ShouldBeNil)
				So(novo.Get("ana", sheet.Monday), ShouldEqual, 2.5)
				port, err := store.LoadCells(ctx, sheet.TablePortabilidade)
				So(err, ShouldBeNil)
				So(port.Get("ana", sheet.Monday), ShouldEqual, 9)
			})

			Convey("Then cells of unknown sellers are not written", func() {
				err := store.SaveCell(ctx, sheet.TableNovo, sheet.Cell{Entity: "ghost", Field: sheet.Monday, Value: 5}, now)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				n, err := store.SaveCells(ctx, sheet.TableNovo, sheet.Snapshot{"ghost": {sheet.Monday: 5}}, now)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				novo, _ := store.LoadCells(ctx, sheet.TableNovo)
				_, has := novo["ghost"]
				So(has, ShouldBeFalse)
			})

			Convey("Then a bulk write counts the stored fields", func() {
				n, err := store.SaveCells(ctx, sheet.TableNovo, sheet.Snapshot{
					"bia": {sheet.Tuesday: 4, sheet.Friday: 6},
				}, now)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				novo, _ := store.LoadCells(ctx, sheet.TableNovo)
				So(novo.Get("bia", sheet.Friday), ShouldEqual, 6)
				So(novo.Get("ana", sheet.Monday), ShouldEqual, 2.5)
			})

			Convey("Then archiving stores per-seller totals and zeroes the sheet", func() {
				start := time.Date(2026, 10, 12, 0, 0, 0, 0, time.Local)
				end := time.Date(2026, 10, 16, 0, 0, 0, 0, time.Local)
				rows, err := store.ArchiveWeek(ctx, sheet.TableNovo, start, end, now)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Username, ShouldEqual, "ana")
				So(rows[0].Total, ShouldEqual, 2.5)
				So(rows[1].Total, ShouldEqual, 0)

				novo, _ := store.LoadCells(ctx, sheet.TableNovo)
				So(novo.Get("ana", sheet.Monday), ShouldEqual, 0)
				port, _ := store.LoadCells(ctx, sheet.TablePortabilidade)
				So(port.Get("ana", sheet.Monday), ShouldEqual, 9)

				hist, err := store.WeeklyHistory(ctx, sheet.TableNovo)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 2)
				So(hist[0].WeekStart.Format("2006-01-02"), ShouldEqual, "2026-10-12")

				none, err := store.WeeklyHistory(ctx, sheet.TablePortabilidade)
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
				all, err := store.WeeklyHistory(ctx, "")
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 2)
			})

			Convey("Then the day's column can be captured and re-captured", func() {
				day := time.Date(2026, 10, 12, 0, 0, 0, 0, time.Local)
				n, err := store.RecordDailySales(ctx, day, sheet.TableNovo, sheet.Monday)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)

				So(store.SaveCell(ctx, sheet.TableNovo, sheet.Cell{Entity: "ana", Field: sheet.Monday, Value: 8}, now), ShouldBeNil)
				_, err = store.RecordDailySales(ctx, day, sheet.TableNovo, sheet.Monday)
				So(err, ShouldBeNil)

				sales, err := store.DailySales(ctx, day, day)
				So(err, ShouldBeNil)
				So(sales, ShouldHaveLength, 2)
				So(sales[0].Username, ShouldEqual, "ana")
				So(sales[0].Value, ShouldEqual, 8)

				later, err := store.DailySales(ctx, day.AddDate(0, 0, 1), day.AddDate(0, 0, 7))
				So(err, ShouldBeNil)
				So(later, ShouldBeEmpty)
			})
		})
	})
}
