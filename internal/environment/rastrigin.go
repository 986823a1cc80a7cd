package environment

import "math"

// Rastrigin is a reference environment for black-box function minimization:
// state is a point in R^Dims, action is a step vector (as produced by
// policy.Continuous), reward is the negated Rastrigin value, so a swarm run
// with Minimize off (maximizing reward) minimizes the function; with
// Minimize set it would seek larger function values. A point leaving
// [-Bound, Bound]^Dims on any axis is flagged out of bounds.
type Rastrigin struct {
	Dims  int
	Bound float64
}

func NewRastrigin(dims int, bound float64) *Rastrigin {
	return &Rastrigin{Dims: dims, Bound: bound}
}

func (r *Rastrigin) Reset(batchSize int) (ResetResult, error) {
	point := make([]float64, r.Dims)
	return ResetResult{
		State:  point,
		Observ: append([]float64(nil), point...),
		Reward: float32(-value(point)),
	}, nil
}

func (r *Rastrigin) MakeTransitions(req TransitionRequest) (TransitionResult, error) {
	n := len(req.States)
	out := TransitionResult{
		States:    make([]any, n),
		Observs:   make([][]float64, n),
		Rewards:   make([]float32, n),
		Oobs:      make([]bool, n),
		Terminals: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		cur := req.States[i].([]float64)
		step := req.Actions[i].([]float64)
		next := make([]float64, len(cur))
		oob := false
		for d := range cur {
			next[d] = cur[d] + step[d]
			if next[d] < -r.Bound || next[d] > r.Bound {
				oob = true
			}
		}
		out.States[i] = next
		out.Observs[i] = append([]float64(nil), next...)
		out.Rewards[i] = float32(-value(next))
		out.Oobs[i] = oob
	}
	return out, nil
}

// value computes the Rastrigin function; its global minimum is 0 at the
// origin.
func value(x []float64) float64 {
	const a = 10.0
	v := a * float64(len(x))
	for _, xi := range x {
		v += xi*xi - a*math.Cos(2*math.Pi*xi)
	}
	return v
}
