package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/loomery/matchd/internal/domain/embedding"
	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/internal/domain/signal"
	"github.com/smartystreets/goconvey/convey"
)

// ancestorMap is a fixed skill -> root-to-leaf chain lookup.
type ancestorMap map[string][]string

func (a ancestorMap) Ancestors(skillID string) ([]string, error) {
	if chain, ok := a[skillID]; ok {
		return chain, nil
	}
	return []string{skillID}, nil
}

// oppMap resolves interaction history opportunities from a fixed set.
type oppMap map[string]model.Opportunity

func (o oppMap) Opportunity(id string) (model.Opportunity, bool) {
	opp, ok := o[id]
	return opp, ok
}

func TestRegistry(t *testing.T) {
	convey.Convey("Given extractors registered in arbitrary order", t, func() {
		r := signal.NewRegistry(
			signal.NewSkillOverlap(ancestorMap{}),
			signal.NewSemantic(),
			signal.NewBehavioral(oppMap{}, ancestorMap{}),
		)

		convey.Convey("Then iteration order is fixed by name", func() {
			convey.So(r.Names(), convey.ShouldResemble, []string{
				signal.NameBehavioral, signal.NameSemantic, signal.NameSkillOverlap,
			})
		})
	})
}

func TestSemantic(t *testing.T) {
	convey.Convey("Given user and opportunity embeddings", t, func() {
		ctx := context.Background()
		e := embedding.New(embedding.WithDimension(64))
		ex := signal.NewSemantic()

		userVec := e.Embed(embedding.Input{EntityID: "u", Skills: map[string]float64{"go": 1}}, 1)
		sameVec := e.Embed(embedding.Input{EntityID: "o", Skills: map[string]float64{"go": 1}}, 1)

		convey.Convey("When the vectors are identical in content", func() {
			score := ex.Score(ctx, signal.Pair{UserVector: userVec.Vector, OppVector: sameVec.Vector})

			convey.Convey("Then the score is 1", func() {
				convey.So(score, convey.ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		convey.Convey("When either side is a zero vector", func() {
			zero := make([]float64, 64)
			score := ex.Score(ctx, signal.Pair{UserVector: userVec.Vector, OppVector: zero})

			convey.Convey("Then the score is exactly 0", func() {
				convey.So(score, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestSkillOverlap(t *testing.T) {
	convey.Convey("Given a category hierarchy backend > go", t, func() {
		ctx := context.Background()
		ancestors := ancestorMap{
			"go":   {"backend", "go"},
			"rust": {"backend", "rust"},
		}
		ex := signal.NewSkillOverlap(ancestors)

		convey.Convey("When the user holds every required skill at full proficiency", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"go": 1, "sql": 1}},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1, "sql": 0.5}},
			})

			convey.Convey("Then the score is exactly 1", func() {
				convey.So(score, convey.ShouldEqual, 1.0)
			})
		})

		convey.Convey("When the user holds only the parent category", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"backend": 1}},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1}},
			})

			convey.Convey("Then the partial-credit fraction applies", func() {
				convey.So(score, convey.ShouldEqual, 0.5)
			})
		})

		convey.Convey("When partial credit is tuned", func() {
			tuned := signal.NewSkillOverlap(ancestors, signal.WithPartialCredit(0.25))
			score := tuned.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"backend": 1}},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1}},
			})

			convey.Convey("Then the tuned fraction applies", func() {
				convey.So(score, convey.ShouldEqual, 0.25)
			})
		})

		convey.Convey("When proficiency is fractional", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"go": 0.5}},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1}},
			})

			convey.Convey("Then credit scales with proficiency", func() {
				convey.So(score, convey.ShouldEqual, 0.5)
			})
		})

		convey.Convey("When there is no overlap at all", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"design": 1}},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1}},
			})

			convey.Convey("Then the score is 0", func() {
				convey.So(score, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When either side is empty", func() {
			convey.So(ex.Score(ctx, signal.Pair{
				User: model.UserProfile{},
				Opp:  model.Opportunity{Required: map[string]float64{"go": 1}},
			}), convey.ShouldEqual, 0)
			convey.So(ex.Score(ctx, signal.Pair{
				User: model.UserProfile{Skills: map[string]float64{"go": 1}},
				Opp:  model.Opportunity{},
			}), convey.ShouldEqual, 0)
		})
	})
}

func TestBehavioral(t *testing.T) {
	convey.Convey("Given a user with interaction history", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		past := model.Opportunity{
			OpportunityID: "opp-past",
			Required:      map[string]float64{"go": 1},
			Category:      "backend",
		}
		candidate := model.Opportunity{
			OpportunityID: "opp-new",
			Required:      map[string]float64{"go": 1},
			Category:      "backend",
		}
		opps := oppMap{"opp-past": past}

		ex := signal.NewBehavioral(opps, ancestorMap{},
			signal.WithClock(clock),
			signal.WithSaturation(1),
		)

		convey.Convey("When the user just applied to a similar opportunity", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{History: []model.Interaction{
					{OpportunityID: "opp-past", Action: model.ActionApplied, At: now},
				}},
				Opp: candidate,
			})

			convey.Convey("Then the score reflects full affinity with no decay", func() {
				convey.So(score, convey.ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		convey.Convey("When the interaction is one half-life old", func() {
			ex := signal.NewBehavioral(opps, ancestorMap{},
				signal.WithClock(clock),
				signal.WithSaturation(1),
				signal.WithHalfLife(24*time.Hour),
			)
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{History: []model.Interaction{
					{OpportunityID: "opp-past", Action: model.ActionApplied, At: now.Add(-24 * time.Hour)},
				}},
				Opp: candidate,
			})

			convey.Convey("Then the contribution is halved", func() {
				convey.So(score, convey.ShouldAlmostEqual, 0.5, 1e-9)
			})
		})

		convey.Convey("When actions differ in strength", func() {
			viewScore := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{History: []model.Interaction{
					{OpportunityID: "opp-past", Action: model.ActionViewed, At: now},
				}},
				Opp: candidate,
			})
			applyScore := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{History: []model.Interaction{
					{OpportunityID: "opp-past", Action: model.ActionApplied, At: now},
				}},
				Opp: candidate,
			})

			convey.Convey("Then applying outweighs viewing", func() {
				convey.So(applyScore, convey.ShouldBeGreaterThan, viewScore)
			})
		})

		convey.Convey("When history references an unknown opportunity", func() {
			score := ex.Score(ctx, signal.Pair{
				User: model.UserProfile{History: []model.Interaction{
					{OpportunityID: "gone", Action: model.ActionApplied, At: now},
				}},
				Opp: candidate,
			})

			convey.Convey("Then the entry contributes nothing", func() {
				convey.So(score, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When old history overflows the window", func() {
			windowed := signal.NewBehavioral(opps, ancestorMap{},
				signal.WithClock(clock),
				signal.WithSaturation(1),
				signal.WithHistoryWindow(1),
			)
			history := []model.Interaction{
				{OpportunityID: "opp-past", Action: model.ActionApplied, At: now},
				{OpportunityID: "gone", Action: model.ActionViewed, At: now},
			}
			score := windowed.Score(ctx, signal.Pair{
				User: model.UserProfile{History: history},
				Opp:  candidate,
			})

			convey.Convey("Then only the newest entries count", func() {
				convey.So(score, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the user has no history", func() {
			score := ex.Score(ctx, signal.Pair{User: model.UserProfile{}, Opp: candidate})

			convey.Convey("Then the score is 0", func() {
				convey.So(score, convey.ShouldEqual, 0)
			})
		})
	})
}
