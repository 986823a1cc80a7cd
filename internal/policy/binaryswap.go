package policy

import (
	"math/rand"

	"github.com/verboid/fragile/internal/fragileerr"
)

var errMisconfiguredBounds error = &fragileerr.ErrMisconfigured{Reason: "policy: low/high bounds misconfigured"}
var errMisconfiguredSwaps error = &fragileerr.ErrMisconfigured{Reason: "policy: n_swaps must be > 0"}

// BinarySwap starts from the current observation (interpreted as a bit
// vector) and flips NSwaps randomly chosen coordinates per walker. It
// reports the flipped coordinate indices as the action -- the minimal delta
// applied to a state, rather than the resulting state itself.
type BinarySwap struct {
	NSwaps int
	rng    *rand.Rand
}

func NewBinarySwap(nSwaps int, rng *rand.Rand) (*BinarySwap, error) {
	if nSwaps <= 0 {
		return nil, errMisconfiguredSwaps
	}
	return &BinarySwap{NSwaps: nSwaps, rng: rng}, nil
}

func (p *BinarySwap) Sample(t Snapshot) (Sample, error) {
	n := t.N()
	observs := t.Observs()
	actions := make([]any, n)
	for i := 0; i < n; i++ {
		width := len(observs[i])
		swaps := p.NSwaps
		if swaps > width {
			swaps = width
		}
		idx := p.rng.Perm(width)[:swaps]
		cp := make([]int, len(idx))
		copy(cp, idx)
		actions[i] = cp
	}
	return Sample{Actions: actions}, nil
}
