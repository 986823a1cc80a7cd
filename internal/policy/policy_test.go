package policy

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/verboid/fragile/internal/table"
)

func TestDiscreteSample(t *testing.T) {
	Convey("Given a discrete policy over 2 actions", t, func() {
		tbl := table.New(8, nil)
		p := NewDiscrete(2, rand.New(rand.NewSource(1)))
		sample, err := p.Sample(tbl)
		So(err, ShouldBeNil)
		Convey("every action is in [0, 2)", func() {
			for _, a := range sample.Actions {
				v := a.(int)
				So(v, ShouldBeBetweenOrEqual, 0, 1)
			}
		})
	})
}

func TestContinuousSampleClipsToBounds(t *testing.T) {
	Convey("Given a continuous normal policy with tight bounds", t, func() {
		tbl := table.New(8, nil)
		p, err := NewContinuous([]float64{-1, -1}, []float64{1, 1}, 10.0, true, rand.New(rand.NewSource(2)))
		So(err, ShouldBeNil)
		sample, err := p.Sample(tbl)
		So(err, ShouldBeNil)
		Convey("every dimension stays within bounds despite a large sigma", func() {
			for _, a := range sample.Actions {
				row := a.([]float64)
				for d, v := range row {
					So(v, ShouldBeBetweenOrEqual, -1.0, 1.0)
					_ = d
				}
			}
		})
	})

	Convey("Given mismatched bounds", t, func() {
		_, err := NewContinuous([]float64{-1}, []float64{-1, 1}, 1.0, false, rand.New(rand.NewSource(3)))
		Convey("construction fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBinarySwapFlipsNSwapsCoordinates(t *testing.T) {
	Convey("Given a binary-swap policy with n_swaps=3", t, func() {
		tbl := table.New(4, nil)
		observs := make([][]float64, 4)
		for i := range observs {
			observs[i] = make([]float64, 8)
		}
		tbl.Update(table.Update{Observs: observs})

		p, err := NewBinarySwap(3, rand.New(rand.NewSource(4)))
		So(err, ShouldBeNil)
		sample, err := p.Sample(tbl)
		So(err, ShouldBeNil)

		Convey("each walker's action names exactly n_swaps distinct coordinates", func() {
			for _, a := range sample.Actions {
				idx := a.([]int)
				So(len(idx), ShouldEqual, 3)
				seen := map[int]bool{}
				for _, v := range idx {
					seen[v] = true
				}
				So(len(seen), ShouldEqual, 3)
			}
		})
	})

	Convey("Given n_swaps <= 0", t, func() {
		_, err := NewBinarySwap(0, rand.New(rand.NewSource(5)))
		Convey("construction fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
