package dedupe_test

import (
	"context"
	"testing"

	"github.com/loomery/matchd/internal/domain/dedupe"
	"github.com/smartystreets/goconvey/convey"
)

func TestKey(t *testing.T) {
	convey.Convey("Given an entity id and model version", t, func() {
		convey.Convey("Then the key combines both", func() {
			convey.So(dedupe.Key("opp-1", 3), convey.ShouldEqual, "opp-1@3")
		})

		convey.Convey("Then different versions produce different keys", func() {
			convey.So(dedupe.Key("opp-1", 3), convey.ShouldNotEqual, dedupe.Key("opp-1", 4))
		})
	})
}

func TestTracker(t *testing.T) {
	convey.Convey("Given an empty tracker", t, func() {
		ctx := context.Background()
		tr := dedupe.NewTracker()

		convey.Convey("When a key is recorded for the first time", func() {
			seen := tr.SeenAndRecord(ctx, "a@1")

			convey.Convey("Then it reports unseen, and seen afterwards", func() {
				convey.So(seen, convey.ShouldBeFalse)
				convey.So(tr.SeenAndRecord(ctx, "a@1"), convey.ShouldBeTrue)
				convey.So(tr.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a key is forgotten", func() {
			tr.SeenAndRecord(ctx, "a@1")
			tr.Forget(ctx, "a@1")

			convey.Convey("Then it can be recorded again", func() {
				convey.So(tr.SeenAndRecord(ctx, "a@1"), convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("Given a tracker with a small capacity", t, func() {
		ctx := context.Background()
		tr := dedupe.NewTracker(dedupe.WithMaxSize(2))

		convey.Convey("When more keys arrive than fit", func() {
			tr.SeenAndRecord(ctx, "a@1")
			tr.SeenAndRecord(ctx, "b@1")
			tr.SeenAndRecord(ctx, "c@1")

			convey.Convey("Then the oldest key is evicted first", func() {
				convey.So(tr.Size(), convey.ShouldEqual, 2)
				convey.So(tr.SeenAndRecord(ctx, "a@1"), convey.ShouldBeFalse)
				convey.So(tr.SeenAndRecord(ctx, "c@1"), convey.ShouldBeTrue)
			})
		})
	})
}
