package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/salesgrid/internal/domain/sheet"
	types "github.com/okian/salesgrid/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTableResponseWireFormat(t *testing.T) {
	Convey("Given a table payload from the server", t, func() {
		body := `{"employees":[{"id":3,"username":"ana","role":"user","position":1}],
			"spreadsheetData":{"ana":{"monday":150.5,"friday":20}}}`

		Convey("When it is decoded", func() {
			var resp types.TableResponse
			err := json.Unmarshal([]byte(body), &resp)

			Convey("Then entities and cells use the field keys", func() {
				So(err, ShouldBeNil)
				So(resp.Employees, ShouldHaveLength, 1)
				So(resp.Employees[0].ID, ShouldEqual, 3)
				So(resp.Cells.Get("ana", sheet.Monday), ShouldEqual, 150.5)
				So(resp.Cells.Get("ana", sheet.Friday), ShouldEqual, 20)
			})
		})
	})
}

func TestCellRequestWireFormat(t *testing.T) {
	Convey("Given a cell request", t, func() {
		req := types.CellRequest{SheetType: "novo", Employee: "ana", Day: "monday", Value: 10}

		Convey("When it is encoded", func() {
			b, err := json.Marshal(req)

			Convey("Then it uses the snake_case names the server expects", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"sheet_type":"novo","employee":"ana","day":"monday","value":10}`)
			})
		})
	})
}
