package policy

import (
	"math/rand"
)

// Continuous samples actions in a per-dimension bounded box, clipping the
// result to [Low, High]. Normal selects between a normal proposal
// (mean at the box center, std Sigma) and a uniform proposal.
type Continuous struct {
	Low, High []float64
	Sigma     float64 // used only when Normal is true
	Normal    bool
	rng       *rand.Rand
}

func NewContinuous(low, high []float64, sigma float64, normal bool, rng *rand.Rand) (*Continuous, error) {
	if len(low) == 0 || len(low) != len(high) {
		return nil, errMisconfiguredBounds
	}
	for i := range low {
		if low[i] > high[i] {
			return nil, errMisconfiguredBounds
		}
	}
	return &Continuous{Low: low, High: high, Sigma: sigma, Normal: normal, rng: rng}, nil
}

func (p *Continuous) Sample(t Snapshot) (Sample, error) {
	n := t.N()
	k := len(p.Low)
	actions := make([]any, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for d := 0; d < k; d++ {
			var v float64
			if p.Normal {
				mid := (p.Low[d] + p.High[d]) / 2
				v = mid + p.rng.NormFloat64()*p.Sigma
			} else {
				v = p.Low[d] + p.rng.Float64()*(p.High[d]-p.Low[d])
			}
			if v < p.Low[d] {
				v = p.Low[d]
			}
			if v > p.High[d] {
				v = p.High[d]
			}
			row[d] = v
		}
		actions[i] = row
	}
	return Sample{Actions: actions}, nil
}
