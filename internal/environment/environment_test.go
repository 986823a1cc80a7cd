package environment

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTwoArmBandit(t *testing.T) {
	Convey("Given a two-arm bandit", t, func() {
		env := NewTwoArmBandit(10)
		reset, err := env.Reset(1)
		So(err, ShouldBeNil)

		result, err := env.MakeTransitions(TransitionRequest{
			States:  []any{reset.State, reset.State},
			Actions: []any{0, 1},
		})
		So(err, ShouldBeNil)

		Convey("action 1 pays reward 1, action 0 pays reward 0", func() {
			So(result.Rewards[0], ShouldEqual, float32(0))
			So(result.Rewards[1], ShouldEqual, float32(1))
		})
	})
}

func TestRastriginMinimumAtOrigin(t *testing.T) {
	Convey("Given the Rastrigin environment at the origin", t, func() {
		env := NewRastrigin(2, 5.0)
		reset, err := env.Reset(1)
		So(err, ShouldBeNil)
		Convey("reward at the origin is zero (the function's global minimum)", func() {
			So(reset.Reward, ShouldEqual, float32(0))
		})
	})

	Convey("Given a step that leaves the bound", t, func() {
		env := NewRastrigin(1, 1.0)
		result, err := env.MakeTransitions(TransitionRequest{
			States:  []any{[]float64{0.9}},
			Actions: []any{[]float64{0.5}},
		})
		So(err, ShouldBeNil)
		Convey("the walker is flagged out of bounds", func() {
			So(result.Oobs[0], ShouldBeTrue)
		})
	})
}

func TestGridWalkCollisionAndFinish(t *testing.T) {
	Convey("Given a small track", t, func() {
		track := []string{
			"WWW",
			"W+W",
			"W-W",
		}
		env := NewGridWalk(track)
		reset, err := env.Reset(1)
		So(err, ShouldBeNil)
		start := reset.State.(gridPos)

		Convey("moving into a wall is a collision and the walker stays put", func() {
			result, err := env.MakeTransitions(TransitionRequest{
				States:  []any{start},
				Actions: []any{[]int{env.index(start.X - 1, start.Y)}},
			})
			So(err, ShouldBeNil)
			So(result.Rewards[0], ShouldEqual, float32(CollisionReward))
			So(result.States[0], ShouldResemble, start)
		})

		Convey("moving onto the finish cell terminates with a positive reward", func() {
			result, err := env.MakeTransitions(TransitionRequest{
				States:  []any{start},
				Actions: []any{[]int{env.index(start.X, start.Y-1)}},
			})
			So(err, ShouldBeNil)
			So(result.Rewards[0], ShouldEqual, float32(FinishReward))
			So(result.Terminals[0], ShouldBeTrue)
		})
	})
}
