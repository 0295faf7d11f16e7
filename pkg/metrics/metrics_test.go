package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a dedicated registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sla"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"competition": "finals"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.snapshotLoads.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_sla_snapshot_loads_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "finals")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "rampart")
				So(manager.subsystem, ShouldEqual, "scoring")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldBeNil)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager configured for a competition", t, func() {
		Configure(WithNamespace("ctf"), WithConstLabels(map[string]string{"competition": "finals"}))
		defer Configure()

		RecordSnapshotLoad()
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		Convey("Then the served registry exports the configured names and labels", func() {
			var found bool
			for _, f := range families {
				if f.GetName() == "ctf_scoring_snapshot_loads_total" {
					found = true
					So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "finals")
					So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1)
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When gauges are updated", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateSLAViolations(3)
			UpdateBlueTeams(12)

			Convey("Then the latest value is exported", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.slaViolations), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.blueTeams), ShouldEqual, 12)
			})
		})

		Convey("When counters are incremented", func() {
			before := testutil.ToFloat64(globalManager.recomputeTotal.WithLabelValues("ok"))
			RecordRecompute("ok", 12.5)
			RecordRecompute("ok", 3)
			hits := testutil.ToFloat64(globalManager.settingsCache.WithLabelValues("hit"))
			RecordSettingsCacheHit()
			RecordSettingFallback("sla_penalty_mode")

			Convey("Then they accumulate per label", func() {
				So(testutil.ToFloat64(globalManager.recomputeTotal.WithLabelValues("ok")), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.settingsCache.WithLabelValues("hit")), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.settingFallbacks.WithLabelValues("sla_penalty_mode")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When every recorder is called", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordRoundsRecomputed(10)
					RecordSnapshotLoad()
					RecordSettingsCacheMiss()
					RecordSummaryLatency(1)
					RecordRepositoryQueryLatency(0.2)
					RecordRepositoryUpdateLatency(0.4)
					UpdateQueueUtilization(0.07)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueCoalesced()
					RecordQueueProcessingLatency(2)
					UpdateWorkerActiveCount(1)
					UpdateWorkerIdleCount(3)
					RecordJobProcessed()
					RecordJobFailed()
					RecordWorkerProcessingLatency(5)
					RecordHTTPRequest("/sla/summary", "GET", "200")
					RecordHTTPRequestDuration("/sla/summary", "GET", "200", 1.5)
					RecordErrorByComponent("recompute", "precondition")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(42)
				}, ShouldNotPanic)
			})
		})

		Convey("When the registry is gathered", func() {
			RecordSnapshotLoad()
			families, err := GetRegistry().Gather()

			Convey("Then the rampart collectors are present", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.jobsProcessed)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordJobProcessed()
					UpdateQueueSize(j)
					RecordHTTPRequest("/healthz", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			So(testutil.ToFloat64(globalManager.jobsProcessed), ShouldEqual, before+1000)
		})
	})
}
