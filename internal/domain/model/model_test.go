package model_test

import (
	"testing"
	"time"

	model "github.com/okian/salesgrid/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRoles(t *testing.T) {
	convey.Convey("Given role names", t, func() {
		convey.Convey("Then empty and user map to RoleUser", func() {
			r, err := model.ParseRole("")
			convey.So(err, convey.ShouldBeNil)
			convey.So(r, convey.ShouldEqual, model.RoleUser)
			r, err = model.ParseRole("USER")
			convey.So(err, convey.ShouldBeNil)
			convey.So(r, convey.ShouldEqual, model.RoleUser)
		})

		convey.Convey("Then admin is recognised and unknown roles fail", func() {
			r, err := model.ParseRole("admin")
			convey.So(err, convey.ShouldBeNil)
			convey.So(r, convey.ShouldEqual, model.RoleAdmin)
			_, err = model.ParseRole("root")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then an entity exposes its principal", func() {
			e := model.Entity{ID: 1, Username: "ana", Role: model.RoleAdmin}
			convey.So(e.Principal(), convey.ShouldResemble, model.Principal{Username: "ana", Admin: true})
		})
	})
}

func TestSessionExpiry(t *testing.T) {
	convey.Convey("Given a session expiring at noon", t, func() {
		noon := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
		s := model.Session{Token: "t", ExpiresAt: noon}

		convey.So(s.Expired(noon.Add(-time.Second)), convey.ShouldBeFalse)
		convey.So(s.Expired(noon), convey.ShouldBeTrue)
	})
}

func TestWeekBounds(t *testing.T) {
	convey.Convey("Given days of one week", t, func() {
		monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
		friday := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

		for _, d := range []time.Time{
			time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
			time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		} {
			start, end := model.WeekBounds(d)
			convey.So(start.Equal(monday), convey.ShouldBeTrue)
			convey.So(end.Equal(friday), convey.ShouldBeTrue)
		}
	})
}
