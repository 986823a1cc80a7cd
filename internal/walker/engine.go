// Package walker implements the per-epoch numerical core of the swarm:
// distance, relativize, virtual reward, clone-probability, and the sampled
// clone itself.
package walker

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/verboid/fragile/internal/fragileerr"
	"github.com/verboid/fragile/internal/table"
)

// Mode selects the virtual-reward formulation. ModeAuto (the default)
// switches to entropy mode automatically when a Critic is attached, and
// simple mode otherwise.
type Mode int

const (
	ModeAuto Mode = iota
	ModeSimple
	ModeEntropy
)

// Critic is the optional scorer that multiplies into virtual_rewards.
// Implementations MUST return strictly positive scores; Balance treats a
// non-positive score as a fatal configuration error rather than clamping it
// silently.
type Critic interface {
	Calculate(t *table.StateTable) ([]float64, error)
}

// Config holds the per-run scalars that parameterize Balance.
type Config struct {
	RewardScale float64 // reward_scale, >= 0
	DistScale   float64 // dist_scale, >= 0
	Minimize    bool
	Mode        Mode
	Critic      Critic
}

// Engine runs the balance pipeline against a StateTable.
type Engine struct {
	cfg Config
	rng *rand.Rand

	// Efficiency is the entropy-mode observable recorded by the last
	// Balance call that ran in entropy mode; zero otherwise.
	Efficiency float64
}

func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	return &Engine{cfg: cfg, rng: rng}
}

// Balance runs one epoch of the walker pipeline in place against t:
// companion sampling for distance, distance+relativize, virtual reward,
// optional critic multiplicand, companion sampling for cloning, clone
// probability, will_clone sampling, and the clone gather itself.
func (e *Engine) Balance(t *table.StateTable) error {
	n := t.N()
	if n == 0 {
		return nil
	}

	compasDist := randomPermutation(e.rng, n)
	d := make([]float64, n)
	observs := t.Observs()
	for i := 0; i < n; i++ {
		d[i] = l2(observs[i], observs[compasDist[i]])
	}
	distances := relativize(d)

	r := make([]float64, n)
	cum := t.CumRewards()
	for i, c := range cum {
		if e.cfg.Minimize {
			r[i] = -c
		} else {
			r[i] = c
		}
	}
	pr := relativize(r)

	mode := e.cfg.Mode
	if mode == ModeAuto {
		if e.cfg.Critic != nil {
			mode = ModeEntropy
		} else {
			mode = ModeSimple
		}
	}

	virtualRewards := make([]float64, n)
	e.Efficiency = 0
	switch mode {
	case ModeEntropy:
		rewardProb := powNormalized(pr, e.cfg.RewardScale)
		distProb := powNormalized(distances, e.cfg.DistScale)
		numerator := 1.0
		denominator := 1.0
		for i := 0; i < n; i++ {
			virtualRewards[i] = 2 - math.Pow(distProb[i], rewardProb[i])
			numerator *= 2 - math.Pow(rewardProb[i], rewardProb[i])
			denominator *= virtualRewards[i]
		}
		if denominator != 0 {
			e.Efficiency = numerator / denominator
		}
	default:
		for i := 0; i < n; i++ {
			virtualRewards[i] = math.Pow(pr[i], e.cfg.RewardScale) * math.Pow(distances[i], e.cfg.DistScale)
		}
	}

	if e.cfg.Critic != nil {
		score, err := e.cfg.Critic.Calculate(t)
		if err != nil {
			return fmt.Errorf("walker: critic calculate: %w", err)
		}
		if len(score) != n {
			return fmt.Errorf("walker: critic returned %d scores, want %d", len(score), n)
		}
		for i := 0; i < n; i++ {
			if score[i] <= 0 {
				return &fragileerr.ErrMisconfigured{Reason: fmt.Sprintf("walker: critic returned non-positive score %v at walker %d", score[i], i)}
			}
			virtualRewards[i] *= score[i]
		}
	}

	oobs := t.Oobs()
	compasClone, cloneProbs := e.sampleClone(virtualRewards, oobs)

	willClone := make([]bool, n)
	for i := 0; i < n; i++ {
		willClone[i] = e.rng.Float64() < cloneProbs[i]
		if oobs[i] {
			willClone[i] = true
		}
	}

	t.SetDerived(distances, virtualRewards, cloneProbs, willClone, compasDist, compasClone)
	t.GatherClone(willClone, compasClone, true)
	return nil
}

// sampleClone implements companion sampling for cloning plus clone_probs. If
// every virtual reward is equal, cloning degenerates to identity/zero-probability.
func (e *Engine) sampleClone(vr []float64, oobs []bool) (compas []int64, cloneProbs []float64) {
	n := len(vr)
	compas = make([]int64, n)
	cloneProbs = make([]float64, n)

	if allEqual(vr) {
		for i := range compas {
			compas[i] = int64(i)
		}
		return compas, cloneProbs
	}

	alive := make([]int, 0, n)
	for i, oob := range oobs {
		if !oob {
			alive = append(alive, i)
		}
	}
	if len(alive) == 0 {
		// No alive walkers: nothing to sample from; leave identity compas
		// and zero clone_probs (oobs forces will_clone regardless).
		for i := range compas {
			compas[i] = int64(i)
		}
		return compas, cloneProbs
	}

	for i := 0; i < n; i++ {
		if i < len(alive) {
			compas[i] = int64(alive[i])
		} else {
			compas[i] = int64(alive[e.rng.Intn(len(alive))])
		}
	}

	for i := 0; i < n; i++ {
		c := compas[i]
		ratio := (vr[c] - vr[i]) / vr[i]
		cloneProbs[i] = math.Sqrt(clip(ratio, 0, 1.1))
	}
	return compas, cloneProbs
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func allEqual(x []float64) bool {
	if len(x) == 0 {
		return true
	}
	first := x[0]
	for _, v := range x[1:] {
		if v != first {
			return false
		}
	}
	return true
}

func randomPermutation(rng *rand.Rand, n int) []int64 {
	perm := rng.Perm(n)
	out := make([]int64, n)
	for i, v := range perm {
		out[i] = int64(v)
	}
	return out
}

func l2(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// powNormalized raises each element of x to scale and normalizes the result
// to sum to 1 (used by entropy mode's reward_prob/dist_prob).
func powNormalized(x []float64, scale float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	var sum float64
	for i, v := range x {
		out[i] = math.Pow(v, scale)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
