package fmc

import (
	"context"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/environment"
	"github.com/verboid/fragile/internal/policy"
	"github.com/verboid/fragile/internal/swarm"
	"github.com/verboid/fragile/internal/walker"
)

// threeArmEnv: arm 2 is optimal (reward 1), arms 0/1 pay 0.
type threeArmEnv struct{}

func (threeArmEnv) Reset(n int) (environment.ResetResult, error) {
	return environment.ResetResult{State: 0, Observ: []float64{0}}, nil
}

func (threeArmEnv) MakeTransitions(req environment.TransitionRequest) (environment.TransitionResult, error) {
	n := len(req.States)
	out := environment.TransitionResult{
		States: make([]any, n), Observs: make([][]float64, n),
		Rewards: make([]float32, n), Oobs: make([]bool, n), Terminals: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		step := req.States[i].(int) + 1
		out.States[i] = step
		out.Observs[i] = []float64{float64(step)}
		if req.Actions[i].(int) == 2 {
			out.Rewards[i] = 1
		}
		out.Terminals[i] = step >= 5
	}
	return out, nil
}

func TestFMCCompositionSelectsOptimalArm(t *testing.T) {
	Convey("Given an outer swarm of 1 walker over 10 epochs, inner N=8", t, func() {
		env := threeArmEnv{}
		composer := &Composer{
			BaseEnv:        env,
			InnerN:         8,
			InnerMaxEpochs: 5,
			InnerPolicyFactory: func() policy.Policy {
				return policy.NewDiscrete(3, rand.New(rand.NewSource(rand.Int63())))
			},
			InnerEngineFactory: func() *walker.Engine {
				return walker.NewEngine(walker.Config{RewardScale: 1, DistScale: 1}, rand.New(rand.NewSource(rand.Int63())))
			},
			Discrete: true,
			NActions: 3,
		}

		outerPolicy := policy.NewDiscrete(3, rand.New(rand.NewSource(1)))
		outerEngine := walker.NewEngine(walker.Config{RewardScale: 1, DistScale: 1}, rand.New(rand.NewSource(2)))
		reg := callback.NewRegistry()
		outer := swarm.New(1, composer, swarm.Direct{Env: composer}, outerPolicy, outerEngine, reg, swarm.Options{
			MaxEpochs: 10,
		}, nil)

		_, err := outer.Run(context.Background())
		So(err, ShouldBeNil)

		selections := 0
		for _, a := range composer.History {
			if a == 2 {
				selections++
			}
		}

		Convey("the majority vote selects arm 2 at least 7 times out of 10", func() {
			So(len(composer.History), ShouldEqual, 10)
			So(selections, ShouldBeGreaterThanOrEqualTo, 7)
		})
	})
}
