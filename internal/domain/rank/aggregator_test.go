package rank_test

import (
	"errors"
	"testing"
	"time"

	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/internal/domain/rank"
	"github.com/loomery/matchd/internal/domain/signal"
	"github.com/smartystreets/goconvey/convey"
)

var signalOrder = []string{signal.NameBehavioral, signal.NameSemantic, signal.NameSkillOverlap}

func candidate(id string, semantic, overlap, behavioral float64, postedAt time.Time, category string) rank.Candidate {
	return rank.Candidate{
		Opp: model.Opportunity{
			OpportunityID: id,
			PostedAt:      postedAt,
			Category:      category,
		},
		Signals: map[string]float64{
			signal.NameSemantic:     semantic,
			signal.NameSkillOverlap: overlap,
			signal.NameBehavioral:   behavioral,
		},
	}
}

func TestAggregator_Rank(t *testing.T) {
	convey.Convey("Given an aggregator and a weight blend", t, func() {
		a := rank.New(signalOrder)
		weights := rank.Weights{
			signal.NameSemantic:     0.5,
			signal.NameSkillOverlap: 0.3,
			signal.NameBehavioral:   0.2,
		}
		posted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

		convey.Convey("When candidates differ in weighted score", func() {
			res, err := a.Rank(rank.Request{
				UserID: "u1",
				Candidates: []rank.Candidate{
					candidate("low", 0.2, 0.2, 0.2, posted, ""),
					candidate("high", 0.9, 0.9, 0.9, posted, ""),
					candidate("mid", 0.5, 0.5, 0.5, posted, ""),
				},
				Weights: weights,
			})

			convey.Convey("Then results come back highest first with breakdowns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.UserID, convey.ShouldEqual, "u1")
				convey.So(res.Entries, convey.ShouldHaveLength, 3)
				convey.So(res.Entries[0].OpportunityID, convey.ShouldEqual, "high")
				convey.So(res.Entries[1].OpportunityID, convey.ShouldEqual, "mid")
				convey.So(res.Entries[2].OpportunityID, convey.ShouldEqual, "low")
				convey.So(res.Entries[0].Score, convey.ShouldAlmostEqual, 0.9, 1e-9)
				convey.So(res.Entries[0].Breakdown[signal.NameSemantic], convey.ShouldEqual, 0.9)
			})
		})

		convey.Convey("When only one signal carries weight", func() {
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{
					candidate("o1", 0.1, 0.8, 0.9, posted, ""),
				},
				Weights: rank.Weights{signal.NameSkillOverlap: 1},
			})

			convey.Convey("Then the aggregate equals that signal's value", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries[0].Score, convey.ShouldAlmostEqual, 0.8, 1e-12)
			})
		})

		convey.Convey("When aggregate scores tie", func() {
			// Dyadic values keep the weighted sums bit-identical.
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{
					candidate("weak-semantic", 0.25, 0.75, 0.25, posted, ""),
					candidate("strong-semantic", 0.5, 0.25, 0.25, posted, ""),
				},
				Weights: rank.Weights{
					signal.NameSemantic:     0.5,
					signal.NameSkillOverlap: 0.25,
					signal.NameBehavioral:   0.25,
				},
			})

			convey.Convey("Then the higher semantic signal wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries[0].OpportunityID, convey.ShouldEqual, "strong-semantic")
			})
		})

		convey.Convey("When the tie extends through every signal", func() {
			older := posted.Add(-time.Hour)
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{
					candidate("b-old", 0.5, 0.5, 0.5, older, ""),
					candidate("a-new", 0.5, 0.5, 0.5, posted, ""),
					candidate("a-old", 0.5, 0.5, 0.5, older, ""),
				},
				Weights: weights,
			})

			convey.Convey("Then recency breaks it, then the id", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries[0].OpportunityID, convey.ShouldEqual, "a-new")
				convey.So(res.Entries[1].OpportunityID, convey.ShouldEqual, "a-old")
				convey.So(res.Entries[2].OpportunityID, convey.ShouldEqual, "b-old")
			})
		})

		convey.Convey("When a minimum score is set", func() {
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{
					candidate("keep", 0.9, 0.9, 0.9, posted, ""),
					candidate("drop", 0.1, 0.1, 0.1, posted, ""),
				},
				Weights:  weights,
				MinScore: 0.5,
			})

			convey.Convey("Then low scorers are filtered out", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries, convey.ShouldHaveLength, 1)
				convey.So(res.Entries[0].OpportunityID, convey.ShouldEqual, "keep")
			})
		})

		convey.Convey("When a limit is set", func() {
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{
					candidate("o1", 0.9, 0.9, 0.9, posted, ""),
					candidate("o2", 0.8, 0.8, 0.8, posted, ""),
					candidate("o3", 0.7, 0.7, 0.7, posted, ""),
				},
				Weights: weights,
				Limit:   2,
			})

			convey.Convey("Then only the top entries return", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries, convey.ShouldHaveLength, 2)
				convey.So(res.Entries[0].OpportunityID, convey.ShouldEqual, "o1")
			})
		})

		convey.Convey("When all weights are zero", func() {
			res, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{candidate("o1", 0.9, 0.9, 0.9, posted, "")},
				Weights:    rank.Weights{},
			})

			convey.Convey("Then every aggregate is zero but ranking still works", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries, convey.ShouldHaveLength, 1)
				convey.So(res.Entries[0].Score, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a weight is negative", func() {
			_, err := a.Rank(rank.Request{
				Candidates: []rank.Candidate{candidate("o1", 0.9, 0.9, 0.9, posted, "")},
				Weights:    rank.Weights{signal.NameSemantic: -1},
			})

			convey.Convey("Then the request is rejected", func() {
				convey.So(errors.Is(err, rank.ErrNegativeWeight), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAggregator_Diversity(t *testing.T) {
	convey.Convey("Given an aggregator capping two results per category", t, func() {
		a := rank.New(signalOrder, rank.WithDiversityCap(2))
		weights := rank.Weights{signal.NameSemantic: 1}
		posted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

		candidates := []rank.Candidate{
			candidate("be-1", 0.9, 0, 0, posted, "backend"),
			candidate("be-2", 0.8, 0, 0, posted, "backend"),
			candidate("be-3", 0.7, 0, 0, posted, "backend"),
			candidate("da-1", 0.6, 0, 0, posted, "data"),
			candidate("da-2", 0.5, 0, 0, posted, "data"),
		}

		convey.Convey("When more than the cap from one category would rank", func() {
			res, err := a.Rank(rank.Request{Candidates: candidates, Weights: weights, Limit: 4})

			convey.Convey("Then the third same-category entry yields its slot", func() {
				convey.So(err, convey.ShouldBeNil)
				ids := []string{}
				for _, e := range res.Entries {
					ids = append(ids, e.OpportunityID)
				}
				convey.So(ids, convey.ShouldResemble, []string{"be-1", "be-2", "da-1", "da-2"})
			})
		})

		convey.Convey("When diverse candidates run out", func() {
			res, err := a.Rank(rank.Request{Candidates: candidates, Weights: weights, Limit: 5})

			convey.Convey("Then skipped entries backfill to the limit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Entries, convey.ShouldHaveLength, 5)
				convey.So(res.Entries[4].OpportunityID, convey.ShouldEqual, "be-3")
			})
		})
	})
}

func TestWeights_Hash(t *testing.T) {
	convey.Convey("Given weight maps", t, func() {
		a := rank.Weights{"semantic": 0.5, "behavioral": 0.2}
		b := rank.Weights{"behavioral": 0.2, "semantic": 0.5}
		c := rank.Weights{"semantic": 0.6, "behavioral": 0.2}

		convey.Convey("Then equal maps hash equal regardless of insertion order", func() {
			convey.So(a.Hash(), convey.ShouldEqual, b.Hash())
		})

		convey.Convey("Then different values hash differently", func() {
			convey.So(a.Hash(), convey.ShouldNotEqual, c.Hash())
		})
	})
}
