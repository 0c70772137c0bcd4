package access_test

import (
	"testing"

	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRolePolicy(t *testing.T) {
	Convey("Given the role policy", t, func() {
		var p access.Policy = access.RolePolicy{}
		admin := model.Principal{Username: "admin", Admin: true}
		ana := model.Principal{Username: "ana"}

		Convey("Then admins may edit any cell", func() {
			So(p.CanEdit(admin, sheet.TableNovo, "ana", sheet.Monday), ShouldBeTrue)
			So(p.CanEdit(admin, sheet.TablePortabilidade, "bia", sheet.Friday), ShouldBeTrue)
		})

		Convey("Then a user may edit only their own row", func() {
			So(p.CanEdit(ana, sheet.TableNovo, "ana", sheet.Tuesday), ShouldBeTrue)
			So(p.CanEdit(ana, sheet.TableNovo, "bia", sheet.Tuesday), ShouldBeFalse)
		})

		Convey("Then an anonymous principal may edit nothing", func() {
			So(p.CanEdit(model.Principal{}, sheet.TableNovo, "", sheet.Monday), ShouldBeFalse)
		})

		Convey("Then only admins manage members", func() {
			So(p.CanManageMembers(admin), ShouldBeTrue)
			So(p.CanManageMembers(ana), ShouldBeFalse)
		})
	})
}
