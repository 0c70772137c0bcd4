package xlsx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEncode(t *testing.T) {
	Convey("Given a table with two sellers", t, func() {
		rows := []model.Entity{{Username: "bia"}, {Username: "ana"}}
		cells := sheet.Snapshot{
			"ana": {sheet.Monday: 10, sheet.Friday: 2.5},
			"bia": {sheet.Tuesday: 100},
		}
		var buf bytes.Buffer
		So(Encode(&buf, sheet.TableNovo, rows, cells), ShouldBeNil)

		f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
		So(err, ShouldBeNil)
		defer f.Close()

		Convey("Then the worksheet is named after the table", func() {
			So(f.GetSheetList(), ShouldResemble, []string{"novo"})
		})

		Convey("Then rows follow display order with totals", func() {
			got, err := f.GetRows("novo", excelize.Options{RawCellValue: true})
			So(err, ShouldBeNil)
			So(got[0], ShouldResemble, []string{"Vendedor", "Seg", "Ter", "Qua", "Qui", "Sex", "Total"})
			So(got[1][0], ShouldEqual, "bia")
			So(got[1][2], ShouldEqual, "100")
			So(got[2][0], ShouldEqual, "ana")
			So(got[2][6], ShouldEqual, "12.5")
			So(got[3][0], ShouldEqual, "Total")
			So(got[3][6], ShouldEqual, "112.5")
		})

		Convey("When it is decoded again", func() {
			table, snap, err := Decode(bytes.NewReader(buf.Bytes()))

			Convey("Then the table and cells come back", func() {
				So(err, ShouldBeNil)
				So(table, ShouldEqual, sheet.TableNovo)
				So(snap.Get("ana", sheet.Friday), ShouldEqual, 2.5)
				So(snap.Get("bia", sheet.Tuesday), ShouldEqual, 100)
				_, hasTotal := snap["Total"]
				So(hasTotal, ShouldBeFalse)
			})
		})
	})
}

func TestDecodeHandWritten(t *testing.T) {
	Convey("Given a workbook typed by hand", t, func() {
		f := excelize.NewFile()
		defer f.Close()
		So(f.SetCellValue("Sheet1", "A1", "Nome"), ShouldBeNil)
		So(f.SetCellValue("Sheet1", "B1", "monday"), ShouldBeNil)
		So(f.SetCellValue("Sheet1", "C1", "Sex"), ShouldBeNil)
		So(f.SetCellValue("Sheet1", "A2", "carla"), ShouldBeNil)
		So(f.SetCellValue("Sheet1", "B2", "1.234,56"), ShouldBeNil)
		So(f.SetCellValue("Sheet1", "C2", "n/a"), ShouldBeNil)
		buf, err := f.WriteToBuffer()
		So(err, ShouldBeNil)

		table, snap, err := Decode(bytes.NewReader(buf.Bytes()))

		Convey("Then BRL text is parsed and junk becomes zero", func() {
			So(err, ShouldBeNil)
			So(table, ShouldEqual, sheet.TableID(""))
			So(snap.Get("carla", sheet.Monday), ShouldEqual, 1234.56)
			So(snap.Get("carla", sheet.Friday), ShouldEqual, 0)
		})
	})

	Convey("Given a workbook without weekday columns", t, func() {
		f := excelize.NewFile()
		defer f.Close()
		So(f.SetCellValue("Sheet1", "A1", "foo"), ShouldBeNil)
		buf, err := f.WriteToBuffer()
		So(err, ShouldBeNil)

		_, _, err = Decode(bytes.NewReader(buf.Bytes()))

		Convey("Then the header is rejected", func() {
			So(errors.Is(err, ErrHeader), ShouldBeTrue)
		})
	})
}
