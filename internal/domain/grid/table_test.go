package grid_test

import (
	"errors"
	"testing"

	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	. "github.com/smartystreets/goconvey/convey"
)

func users(names ...string) []model.Entity {
	out := make([]model.Entity, len(names))
	for i, n := range names {
		out[i] = model.Entity{ID: int64(i + 1), Username: n, Role: model.RoleUser}
	}
	return out
}

func loaded(names ...string) *grid.Table {
	t := grid.New(sheet.TableNovo)
	t.ApplyRefresh(t.Mark(), users(names...), sheet.Snapshot{})
	return t
}

func TestApplyRefresh(t *testing.T) {
	Convey("Given an empty table", t, func() {
		tb := grid.New(sheet.TablePortabilidade)
		So(tb.Loaded(), ShouldBeFalse)

		Convey("When the first refresh arrives", func() {
			res := tb.ApplyRefresh(tb.Mark(), users("B", "A"), sheet.Snapshot{
				"A":     {sheet.Monday: 10},
				"B":     {sheet.Friday: 5},
				"ghost": {sheet.Monday: 99},
			})

			Convey("Then the display order follows the fetch order", func() {
				So(tb.Loaded(), ShouldBeTrue)
				So(res.Added, ShouldResemble, []string{"B", "A"})
				So(tb.Keys(), ShouldResemble, []string{"B", "A"})
			})

			Convey("Then cells are copied for known entities only", func() {
				So(tb.Value("A", sheet.Monday), ShouldEqual, 10)
				So(tb.Value("B", sheet.Friday), ShouldEqual, 5)
				So(tb.Value("B", sheet.Monday), ShouldEqual, 0)
				_, hasGhost := tb.Snapshot()["ghost"]
				So(hasGhost, ShouldBeFalse)
			})
		})
	})
}

func TestEditApplication(t *testing.T) {
	Convey("Given a loaded table [A B]", t, func() {
		tb := loaded("A", "B")

		Convey("When A.monday is edited", func() {
			e, err := tb.Edit("A", sheet.Monday, 100)

			Convey("Then the local value is visible immediately and pending", func() {
				So(err, ShouldBeNil)
				So(e.Table, ShouldEqual, sheet.TableNovo)
				So(tb.Value("A", sheet.Monday), ShouldEqual, 100)
				st, _ := tb.State("A", sheet.Monday)
				So(st, ShouldEqual, grid.Pending)
				So(tb.Count(grid.Pending), ShouldEqual, 1)
			})

			Convey("Then totals derive from the snapshot", func() {
				tot := tb.Totals()
				So(tot.Row("A"), ShouldEqual, 100)
				So(tot.GrandTotal(), ShouldEqual, 100)
			})

			Convey("Then confirming marks the cell synced", func() {
				So(tb.Confirm(e), ShouldBeTrue)
				st, _ := tb.State("A", sheet.Monday)
				So(st, ShouldEqual, grid.Synced)
			})

			Convey("Then an older outcome does not override a newer edit", func() {
				newer, _ := tb.Edit("A", sheet.Monday, 200)
				So(tb.Fail(e, errors.New("late")), ShouldBeFalse)
				st, _ := tb.State("A", sheet.Monday)
				So(st, ShouldEqual, grid.Pending)
				So(tb.Confirm(newer), ShouldBeTrue)
				So(tb.Value("A", sheet.Monday), ShouldEqual, 200)
			})
		})

		Convey("When editing an entity that is not displayed", func() {
			_, err := tb.Edit("Z", sheet.Monday, 1)

			Convey("Then it is rejected without touching the snapshot", func() {
				So(errors.Is(err, grid.ErrUnknownEntity), ShouldBeTrue)
				_, has := tb.Snapshot()["Z"]
				So(has, ShouldBeFalse)
			})
		})
	})
}

func TestFailedCells(t *testing.T) {
	Convey("Given a cell whose save failed", t, func() {
		tb := loaded("A")
		tb.ApplyRefresh(tb.Mark(), users("A"), sheet.Snapshot{"A": {sheet.Tuesday: 7}})
		e, _ := tb.Edit("A", sheet.Tuesday, 50)
		boom := errors.New("offline")
		So(tb.Fail(e, boom), ShouldBeTrue)

		Convey("Then the value is kept and the cell is visibly failed", func() {
			So(tb.Value("A", sheet.Tuesday), ShouldEqual, 50)
			st, err := tb.State("A", sheet.Tuesday)
			So(st, ShouldEqual, grid.Failed)
			So(err, ShouldEqual, boom)
			So(tb.FailedCells(), ShouldResemble, []grid.CellRef{{Entity: "A", Field: sheet.Tuesday}})
		})

		Convey("When it is retried", func() {
			r, err := tb.Retry("A", sheet.Tuesday)

			Convey("Then a new pending edit of the same value is produced", func() {
				So(err, ShouldBeNil)
				So(r.Value, ShouldEqual, 50)
				So(r.Seq, ShouldBeGreaterThan, e.Seq)
				st, _ := tb.State("A", sheet.Tuesday)
				So(st, ShouldEqual, grid.Pending)
			})
		})

		Convey("When it is discarded", func() {
			So(tb.Discard("A", sheet.Tuesday), ShouldBeNil)

			Convey("Then it rolls back to the last server value", func() {
				So(tb.Value("A", sheet.Tuesday), ShouldEqual, 7)
				st, _ := tb.State("A", sheet.Tuesday)
				So(st, ShouldEqual, grid.Synced)
			})
		})

		Convey("When a refresh reports a newer server value", func() {
			tb.ApplyRefresh(tb.Mark(), users("A"), sheet.Snapshot{"A": {sheet.Tuesday: 9}})

			Convey("Then the failed value stays and discard uses the new base", func() {
				So(tb.Value("A", sheet.Tuesday), ShouldEqual, 50)
				So(tb.Discard("A", sheet.Tuesday), ShouldBeNil)
				So(tb.Value("A", sheet.Tuesday), ShouldEqual, 9)
			})
		})

		Convey("Then retrying a healthy cell is an error", func() {
			_, err := tb.Retry("A", sheet.Monday)
			So(errors.Is(err, grid.ErrNotFailed), ShouldBeTrue)
			So(errors.Is(tb.Discard("A", sheet.Monday), grid.ErrNotFailed), ShouldBeTrue)
		})
	})
}

func TestStaleRefreshScenario(t *testing.T) {
	Convey("Given entities [A B] with all cells zero", t, func() {
		tb := loaded("A", "B")
		stale := tb.Mark()

		Convey("When A.monday is edited to 100", func() {
			e, _ := tb.Edit("A", sheet.Monday, 100)
			So(tb.Totals().Row("A"), ShouldEqual, 100)
			So(tb.Totals().GrandTotal(), ShouldEqual, 100)

			Convey("And a refresh issued before the edit reports [A B C] with A.monday = 0", func() {
				res := tb.ApplyRefresh(stale, users("A", "B", "C"), sheet.Snapshot{})

				Convey("Then the optimistic value survives and C is appended", func() {
					So(tb.Value("A", sheet.Monday), ShouldEqual, 100)
					So(tb.Totals().GrandTotal(), ShouldEqual, 100)
					So(tb.Keys(), ShouldResemble, []string{"A", "B", "C"})
					So(res.Preserved, ShouldContain, grid.CellRef{Entity: "A", Field: sheet.Monday})
				})
			})

			Convey("And the save is confirmed before the stale refresh resolves", func() {
				tb.Confirm(e)
				tb.ApplyRefresh(stale, users("A", "B"), sheet.Snapshot{})

				Convey("Then the stale value still does not win", func() {
					So(tb.Value("A", sheet.Monday), ShouldEqual, 100)
				})
			})

			Convey("And a refresh is issued while the save is in flight", func() {
				inflight := tb.Mark()
				So(tb.Confirm(e), ShouldBeTrue)
				tb.ApplyRefresh(inflight, users("A", "B"), sheet.Snapshot{"A": {sheet.Monday: 0}})

				Convey("Then the confirmed value is not reverted by the older data", func() {
					So(tb.Value("A", sheet.Monday), ShouldEqual, 100)
					st, _ := tb.State("A", sheet.Monday)
					So(st, ShouldEqual, grid.Synced)
				})

				Convey("Then the next refresh converges to the server", func() {
					tb.ApplyRefresh(tb.Mark(), users("A", "B"), sheet.Snapshot{"A": {sheet.Monday: 100}})
					So(tb.Value("A", sheet.Monday), ShouldEqual, 100)
				})
			})

			Convey("And the save settles before a fresh refresh is issued", func() {
				tb.Confirm(e)
				tb.ApplyRefresh(tb.Mark(), users("A", "B"), sheet.Snapshot{"A": {sheet.Monday: 0}})

				Convey("Then the table converges to the server", func() {
					So(tb.Value("A", sheet.Monday), ShouldEqual, 0)
					So(tb.Totals().GrandTotal(), ShouldEqual, 0)
				})
			})
		})
	})
}

func TestRemovalScenario(t *testing.T) {
	Convey("Given display order [A B C]", t, func() {
		tb := loaded("A", "B", "C")
		stale := tb.Mark()
		e, _ := tb.Edit("B", sheet.Monday, 5)

		Convey("When B is removed", func() {
			So(tb.RemoveEntity("B"), ShouldBeTrue)

			Convey("Then B is gone from order, snapshot and sync state", func() {
				So(tb.Keys(), ShouldResemble, []string{"A", "C"})
				_, has := tb.Snapshot()["B"]
				So(has, ShouldBeFalse)
				So(tb.Count(grid.Pending), ShouldEqual, 0)
				_, ok := tb.Entity("B")
				So(ok, ShouldBeFalse)
			})

			Convey("Then a lagging refresh listing B does not resurrect it", func() {
				tb.ApplyRefresh(stale, users("A", "B", "C"), sheet.Snapshot{"B": {sheet.Monday: 5}})
				So(tb.Keys(), ShouldResemble, []string{"A", "C"})
				_, has := tb.Snapshot()["B"]
				So(has, ShouldBeFalse)
			})

			Convey("Then a late save outcome for B is ignored", func() {
				So(tb.Confirm(e), ShouldBeFalse)
			})

			Convey("Then an explicit add brings B back with an empty row", func() {
				tb.AddEntity(model.Entity{ID: 9, Username: "B", Role: model.RoleUser})
				So(tb.Keys(), ShouldResemble, []string{"A", "C", "B"})
				So(tb.Value("B", sheet.Monday), ShouldEqual, 0)
				ent, ok := tb.Entity("B")
				So(ok, ShouldBeTrue)
				So(ent.ID, ShouldEqual, 9)
			})
		})
	})
}

func TestView(t *testing.T) {
	Convey("Given a table viewed by a non-admin", t, func() {
		tb := loaded("ana", "bia")
		tb.ApplyRefresh(tb.Mark(), users("ana", "bia"), sheet.Snapshot{
			"ana": {sheet.Monday: 1234.5},
			"bia": {sheet.Monday: 10, sheet.Friday: 1},
		})
		_, err := tb.Edit("ana", sheet.Friday, 0.5)
		So(err, ShouldBeNil)

		v := tb.View(model.Principal{Username: "ana"}, access.RolePolicy{})

		Convey("Then rows follow display order with formatted totals", func() {
			So(v.Rows, ShouldHaveLength, 2)
			So(v.Rows[0].Entity.Username, ShouldEqual, "ana")
			So(v.Rows[0].Total.Text, ShouldEqual, "R$ 1.235,00")
			So(v.ColumnTotals[0].Value, ShouldEqual, 1244.5)
			So(v.GrandTotal.Text, ShouldEqual, "R$ 1.246,00")
		})

		Convey("Then only the user's own row is editable", func() {
			So(v.Rows[0].Editable, ShouldBeTrue)
			So(v.Rows[1].Editable, ShouldBeFalse)
			So(v.Rows[1].Cells[0].Editable, ShouldBeFalse)
			So(v.CanManage, ShouldBeFalse)
		})

		Convey("Then the pending cell is flagged", func() {
			So(v.Rows[0].Cells[4].State, ShouldEqual, grid.Pending)
			So(v.Rows[0].Cells[4].State.String(), ShouldEqual, "pending")
		})
	})
}
