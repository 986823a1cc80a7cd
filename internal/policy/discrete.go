package policy

import (
	"math/rand"
)

// Discrete samples integers uniformly in [0, NActions).
type Discrete struct {
	NActions int
	rng      *rand.Rand
}

func NewDiscrete(nActions int, rng *rand.Rand) *Discrete {
	return &Discrete{NActions: nActions, rng: rng}
}

func (p *Discrete) Sample(t Snapshot) (Sample, error) {
	n := t.N()
	actions := make([]any, n)
	for i := range actions {
		actions[i] = p.rng.Intn(p.NActions)
	}
	return Sample{Actions: actions}, nil
}
