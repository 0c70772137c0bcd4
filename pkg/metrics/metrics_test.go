package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register its collectors", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)

				manager.pendingCells.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("grid"),
				WithMetricPrefix("x"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRefreshInterval(time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.archiveRuns.Inc()

			Convey("Then metric names should carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_grid_x_weekly_archive_runs_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, time.Second)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration should panic", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		SetEnabled(true)

		Convey("When recording client sync metrics", func() {
			before := testutil.ToFloat64(globalManager.cellSaves.WithLabelValues("novo", OutcomeSynced))
			RecordCellSave("novo", OutcomeSynced)
			RecordCellSave("novo", OutcomeSynced)
			UpdatePendingCells(7)
			RecordRefresh("novo", OutcomeOK)
			UpdateTableEntities("novo", 4)

			Convey("Then counters and gauges should move", func() {
				after := testutil.ToFloat64(globalManager.cellSaves.WithLabelValues("novo", OutcomeSynced))
				So(after-before, ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.pendingCells), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.tableEntities.WithLabelValues("novo")), ShouldEqual, 4)
			})
		})

		Convey("When recording server metrics", func() {
			before := testutil.ToFloat64(globalManager.cellWrites.WithLabelValues("portabilidade", "bulk"))
			RecordCellWrites("portabilidade", "bulk", 5)
			RecordLogin("ok")
			UpdateActiveSessions(2)
			RecordDuplicateSave()
			RecordRepositoryQuery("load_cells", 1.5)

			Convey("Then they should be visible", func() {
				So(testutil.ToFloat64(globalManager.cellWrites.WithLabelValues("portabilidade", "bulk"))-before, ShouldEqual, 5)
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 2)
			})
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() {
				RecordHTTPRequest("cell", "POST", "200")
				RecordHTTPRequestDuration("cell", "POST", "200", 3)
				RecordErrorByComponent("queue", "full")
				RecordErrorByEndpoint("cell", "POST", "client_error")
			}, ShouldNotPanic)
		})

		Convey("When metrics are disabled", func() {
			UpdateQueueSize(10)
			SetEnabled(false)
			UpdateQueueSize(99)
			SetEnabled(true)

			Convey("Then updates should be ignored", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 10)
			})
		})

		Convey("When exporting the registry", func() {
			RecordArchiveRun()

			Convey("Then it should expose the salesgrid namespace", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				hasOurs := false
				for _, f := range families {
					if strings.HasPrefix(f.GetName(), "salesgrid_") {
						hasOurs = true
					}
				}
				So(hasOurs, ShouldBeTrue)
				So(Global(), ShouldEqual, globalManager)
			})
		})
	})
}
