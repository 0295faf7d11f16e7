package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rampart/internal/domain/sla"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleSettings = `
sla_enabled: true
sla_penalty_threshold: 3
sla_penalty_mode: exponential
dynamic_scoring_late_multiplier: 0.25
`

func writeSettings(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func TestFileSource(t *testing.T) {
	Convey("Given a YAML settings file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "settings.yaml")
		writeSettings(t, path, sampleSettings)
		src, err := NewFileSource(path, nil)
		So(err, ShouldBeNil)

		Convey("Then scalar values are exposed as strings", func() {
			v, ok, err := src.Get(ctx, sla.KeyLateMultiplier)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "0.25")

			snap, err := NewProvider(src).Snapshot(ctx)
			So(err, ShouldBeNil)
			So(snap.SLAEnabled, ShouldBeTrue)
			So(snap.PenaltyThreshold, ShouldEqual, 3)
			So(snap.PenaltyMode, ShouldEqual, sla.ModeExponential)
			So(snap.LateMultiplier, ShouldEqual, 0.25)
		})

		Convey("Then writes are refused", func() {
			err := NewProvider(src).Set(ctx, sla.KeySLAEnabled, "false")
			So(errors.Is(err, ErrReadOnly), ShouldBeTrue)
		})

		Convey("When the file becomes invalid", func() {
			writeSettings(t, path, "sla_enabled: [1, 2]\n")
			err := src.Reload()

			Convey("Then the reload fails and the previous values stay", func() {
				So(errors.Is(err, ErrInvalidFile), ShouldBeTrue)
				v, _, _ := src.Get(ctx, sla.KeySLAEnabled)
				So(v, ShouldEqual, "true")
			})
		})
	})

	Convey("Given a missing settings file", t, func() {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"), nil)

		Convey("Then construction fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFileSourceWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "sla_penalty_percent: 10\n")
	src, err := NewFileSource(path, nil)
	if err != nil {
		t.Fatalf("new file source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changed atomic.Int32
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx, func() { changed.Add(1) }) }()

	// The watch is armed asynchronously and a truncating write may be observed
	// half-done, so keep rewriting until the new value is visible.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if v, _, _ := src.Get(ctx, sla.KeyPenaltyPercent); v == "25" && changed.Load() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never reloaded the file")
		case <-tick.C:
			writeSettings(t, path, "sla_penalty_percent: 25\n")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watch did not stop after cancel")
	}
}
