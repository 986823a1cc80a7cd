package walker

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/verboid/fragile/internal/table"
)

func newTable(n int) *table.StateTable {
	t := table.New(n, nil)
	states := make([]any, n)
	observs := make([][]float64, n)
	actions := make([]any, n)
	oob := make([]bool, n)
	for i := 0; i < n; i++ {
		states[i] = i
		observs[i] = []float64{0, 0}
		actions[i] = 0
	}
	t.Update(table.Update{States: states, Observs: observs, Actions: actions, OobS: oob})
	return t
}

func TestRelativize(t *testing.T) {
	Convey("Given a constant vector", t, func() {
		x := []float64{3, 3, 3, 3}
		y := relativize(x)
		Convey("relativize returns all ones", func() {
			So(y, ShouldResemble, []float64{1, 1, 1, 1})
		})
	})

	Convey("Given a vector with NaN", t, func() {
		x := []float64{1, 2, 3, 4, 2}
		x[2] = nan()
		y := relativize(x)
		Convey("relativize coerces to finite positive output", func() {
			for _, v := range y {
				So(v, ShouldEqual, 1.0)
			}
		})
	})

	Convey("Given a monotone increasing vector", t, func() {
		x := []float64{1, 2, 3, 4, 5}
		y := relativize(x)
		Convey("the output is strictly positive and non-decreasing", func() {
			for i, v := range y {
				So(v, ShouldBeGreaterThan, 0)
				if i > 0 {
					So(v, ShouldBeGreaterThanOrEqualTo, y[i-1])
				}
			}
		})
	})
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestBalanceConstantReward(t *testing.T) {
	Convey("Given N=4 walkers with constant reward and identical zero observations", t, func() {
		n := 4
		tbl := newTable(n)
		cum := []float64{1, 1, 1, 1}
		tbl.SetCumRewards(cum)

		eng := NewEngine(Config{RewardScale: 1, DistScale: 1}, rand.New(rand.NewSource(1)))

		before := append([]any(nil), tbl.States()...)
		err := eng.Balance(tbl)

		Convey("Balance succeeds", func() {
			So(err, ShouldBeNil)
		})
		Convey("distances are all 1 (equal observations)", func() {
			for _, d := range tbl.Distances() {
				So(d, ShouldEqual, 1)
			}
		})
		Convey("virtual_rewards are all 1", func() {
			for _, vr := range tbl.VirtualRewards() {
				So(vr, ShouldEqual, 1)
			}
		})
		Convey("will_clone is all false", func() {
			for _, wc := range tbl.WillClone() {
				So(wc, ShouldBeFalse)
			}
		})
		Convey("the table is unchanged by balance", func() {
			So(tbl.States(), ShouldResemble, before)
		})
	})
}

func TestBalanceInvariants(t *testing.T) {
	Convey("Given N=16 walkers with varied rewards and observations", t, func() {
		n := 16
		tbl := newTable(n)
		cum := make([]float64, n)
		observs := make([][]float64, n)
		for i := range cum {
			cum[i] = float64(i)
			observs[i] = []float64{float64(i), float64(i * 2)}
		}
		tbl.SetCumRewards(cum)
		tbl.Update(table.Update{Observs: observs})

		eng := NewEngine(Config{RewardScale: 1, DistScale: 1}, rand.New(rand.NewSource(42)))
		err := eng.Balance(tbl)
		So(err, ShouldBeNil)

		Convey("every column retains length N", func() {
			So(len(tbl.Distances()), ShouldEqual, n)
			So(len(tbl.VirtualRewards()), ShouldEqual, n)
			So(len(tbl.CloneProbs()), ShouldEqual, n)
		})
		Convey("virtual_rewards are strictly positive", func() {
			for _, vr := range tbl.VirtualRewards() {
				So(vr, ShouldBeGreaterThan, 0)
			}
		})
		Convey("clone_probs are within [0, sqrt(1.1)]", func() {
			for _, p := range tbl.CloneProbs() {
				So(p, ShouldBeBetweenOrEqual, 0.0, 1.0488088481701516)
			}
		})
	})
}

func TestBalanceDeadWalkersAlwaysClone(t *testing.T) {
	Convey("Given N=4 with walkers 0 and 2 out of bounds", t, func() {
		n := 4
		tbl := newTable(n)
		cum := []float64{0, 1, 0, 2}
		oob := []bool{true, false, true, false}
		tbl.SetCumRewards(cum)
		tbl.Update(table.Update{OobS: oob})

		eng := NewEngine(Config{RewardScale: 1, DistScale: 1}, rand.New(rand.NewSource(7)))
		err := eng.Balance(tbl)
		So(err, ShouldBeNil)

		Convey("oob walkers always have will_clone true", func() {
			So(tbl.WillClone()[0], ShouldBeTrue)
			So(tbl.WillClone()[2], ShouldBeTrue)
		})
		Convey("oob walkers clone only from the alive set {1,3}", func() {
			alive := map[int64]bool{1: true, 3: true}
			So(alive[tbl.CompasClone()[0]], ShouldBeTrue)
			So(alive[tbl.CompasClone()[2]], ShouldBeTrue)
		})
	})
}

func TestGatherCloneIdentityWhenAllFalse(t *testing.T) {
	Convey("Given gather_clone with will_clone all false", t, func() {
		n := 5
		tbl := newTable(n)
		before := append([]any(nil), tbl.States()...)
		willClone := make([]bool, n)
		compas := []int64{4, 3, 2, 1, 0}
		tbl.GatherClone(willClone, compas, true)

		Convey("the table is unchanged", func() {
			So(tbl.States(), ShouldResemble, before)
		})
	})
}

func TestBalanceEntropyModeWithCritic(t *testing.T) {
	Convey("Given a NoveltyCritic attached to a varied-reward table", t, func() {
		n := 8
		tbl := newTable(n)
		cum := make([]float64, n)
		observs := make([][]float64, n)
		states := make([]any, n)
		for i := range cum {
			cum[i] = float64(i)
			observs[i] = []float64{float64(i)}
			states[i] = i
		}
		tbl.SetCumRewards(cum)
		tbl.Update(table.Update{Observs: observs, States: states})

		critic := NewNoveltyCritic()
		eng := NewEngine(Config{RewardScale: 1, DistScale: 1, Critic: critic}, rand.New(rand.NewSource(9)))
		err := eng.Balance(tbl)

		Convey("Balance succeeds and runs in entropy mode", func() {
			So(err, ShouldBeNil)
			So(eng.Efficiency, ShouldNotEqual, 0)
		})
		Convey("virtual_rewards remain strictly positive", func() {
			for _, vr := range tbl.VirtualRewards() {
				So(vr, ShouldBeGreaterThan, 0)
			}
		})
	})
}

type zeroCritic struct{}

func (zeroCritic) Calculate(t *table.StateTable) ([]float64, error) {
	return make([]float64, t.N()), nil
}

func TestBalanceRejectsNonPositiveCriticScore(t *testing.T) {
	Convey("Given a critic that returns zero scores", t, func() {
		n := 4
		tbl := newTable(n)
		tbl.SetCumRewards([]float64{1, 2, 3, 4})

		eng := NewEngine(Config{RewardScale: 1, DistScale: 1, Critic: zeroCritic{}}, rand.New(rand.NewSource(1)))
		err := eng.Balance(tbl)

		Convey("Balance returns a fatal error rather than propagating a non-positive virtual reward", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	Convey("Given export_walker followed by import_walker broadcast", t, func() {
		n := 3
		tbl := newTable(n)
		tbl.Update(table.Update{States: []any{"a", "b", "c"}})
		w := tbl.ExportWalker(1)
		tbl.ImportWalker(w)

		Convey("every row equals the export", func() {
			for i := 0; i < n; i++ {
				So(tbl.ExportWalker(i).State, ShouldEqual, w.State)
			}
		})
	})
}
