package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/rampart/internal/domain/sla"
	. "github.com/smartystreets/goconvey/convey"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, Entry, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Delete(context.Context, string) error { return nil }
func (brokenCache) Purge(context.Context) error          { return nil }

func TestProviderSnapshot(t *testing.T) {
	Convey("Given a provider over an in-memory source", t, func() {
		ctx := context.Background()
		source := NewMemorySource(nil)
		cache := NewLocalCache()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cache.now = func() time.Time { return now }
		p := NewProvider(source, WithCache(cache), WithTTL(30*time.Second))

		Convey("When nothing is stored", func() {
			snap, err := p.Snapshot(ctx)

			Convey("Then the defaults are returned", func() {
				So(err, ShouldBeNil)
				So(snap, ShouldResemble, sla.Defaults())
			})
		})

		Convey("When a value changes behind the cache", func() {
			_, err := p.Snapshot(ctx)
			So(err, ShouldBeNil)
			_ = source.Set(ctx, sla.KeyPenaltyThreshold, "3")

			Convey("Then the cached value is served until the TTL passes", func() {
				snap, _ := p.Snapshot(ctx)
				So(snap.PenaltyThreshold, ShouldEqual, 5)

				now = now.Add(31 * time.Second)
				snap, _ = p.Snapshot(ctx)
				So(snap.PenaltyThreshold, ShouldEqual, 3)
			})

			Convey("And Invalidate makes it visible immediately", func() {
				So(p.Invalidate(ctx), ShouldBeNil)
				snap, _ := p.Snapshot(ctx)
				So(snap.PenaltyThreshold, ShouldEqual, 3)
			})
		})

		Convey("When a value is updated through the provider", func() {
			_, _ = p.Snapshot(ctx)
			_ = source.Set(ctx, sla.KeyPenaltyPercent, "20")
			err := p.Set(ctx, sla.KeyPenaltyMode, "flat")

			Convey("Then only that key is refreshed", func() {
				So(err, ShouldBeNil)
				snap, _ := p.Snapshot(ctx)
				So(snap.PenaltyMode, ShouldEqual, sla.ModeFlat)
				So(snap.PenaltyPercent, ShouldEqual, 10)
			})
		})

		Convey("When an invalid value is submitted", func() {
			err := p.Set(ctx, sla.KeyEarlyMultiplier, "-1")

			Convey("Then it is rejected and nothing is stored", func() {
				So(errors.Is(err, sla.ErrInvalidSetting), ShouldBeTrue)
				_, ok, _ := source.Get(ctx, sla.KeyEarlyMultiplier)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a stored value is malformed", func() {
			_ = source.Set(ctx, sla.KeyPenaltyMode, "quadratic")
			snap, err := p.Snapshot(ctx)

			Convey("Then the default is used without failing", func() {
				So(err, ShouldBeNil)
				So(snap.PenaltyMode, ShouldEqual, sla.ModeAdditive)
			})
		})

		Convey("When raw settings are written", func() {
			So(p.SetRaw(ctx, "teams_to_update", "1,2"), ShouldBeNil)
			v, ok, err := p.Raw(ctx, "teams_to_update")

			Convey("Then they are readable without validation", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "1,2")
			})
		})
	})

	Convey("Given a provider whose cache is unavailable", t, func() {
		ctx := context.Background()
		source := NewMemorySource(map[string]string{sla.KeySLAEnabled: "true"})
		p := NewProvider(source, WithCache(brokenCache{}))

		Convey("Then snapshots are read from the source", func() {
			snap, err := p.Snapshot(ctx)
			So(err, ShouldBeNil)
			So(snap.SLAEnabled, ShouldBeTrue)
		})
	})
}

func TestLocalCache(t *testing.T) {
	Convey("Given a local cache", t, func() {
		ctx := context.Background()
		c := NewLocalCache()
		now := time.Unix(1000, 0)
		c.now = func() time.Time { return now }

		So(c.Set(ctx, "a", Entry{Value: "1", Present: true}, time.Second), ShouldBeNil)
		So(c.Set(ctx, "b", Entry{}, time.Minute), ShouldBeNil)

		Convey("Then absent values are cached too", func() {
			e, hit, err := c.Get(ctx, "b")
			So(err, ShouldBeNil)
			So(hit, ShouldBeTrue)
			So(e.Present, ShouldBeFalse)
		})

		Convey("Then entries expire at their deadline", func() {
			now = now.Add(time.Second)
			_, hit, _ := c.Get(ctx, "a")
			So(hit, ShouldBeFalse)
		})

		Convey("Then purge removes everything", func() {
			So(c.Purge(ctx), ShouldBeNil)
			_, hit, _ := c.Get(ctx, "b")
			So(hit, ShouldBeFalse)
		})
	})
}

func TestEntryEncoding(t *testing.T) {
	Convey("Given cached entries", t, func() {
		Convey("Then present and absent values round-trip", func() {
			for _, e := range []Entry{{}, {Value: "", Present: true}, {Value: "=x-", Present: true}} {
				got, err := decodeEntry(encodeEntry(e))
				So(err, ShouldBeNil)
				So(got, ShouldResemble, e)
			}
		})

		Convey("Then they are stored as plain text markers", func() {
			So(encodeEntry(Entry{Value: "7", Present: true}), ShouldEqual, "=7")
			So(encodeEntry(Entry{}), ShouldEqual, "-")
		})

		Convey("Then foreign values are rejected", func() {
			_, err := decodeEntry(`{"value":"7"}`)
			So(errors.Is(err, ErrCorruptCached), ShouldBeTrue)
			_, err = decodeEntry("true")
			So(errors.Is(err, ErrCorruptCached), ShouldBeTrue)
		})
	})
}
