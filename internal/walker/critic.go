package walker

import (
	"math"

	"github.com/verboid/fragile/internal/table"
)

// NoveltyCritic scores a walker by how rarely its current state has been
// visited: score = 1 / sqrt(visits+1), so a first-time state scores 1 and
// a state seen many times decays toward zero without ever reaching it --
// satisfying the entropy-mode contract that a Critic must never return a
// non-positive score. Visits are tracked by the table's hashed walker id
// (table.StateTable.IDWalkers).
type NoveltyCritic struct {
	visits map[int64]int
}

func NewNoveltyCritic() *NoveltyCritic {
	return &NoveltyCritic{visits: make(map[int64]int)}
}

func (c *NoveltyCritic) Calculate(t *table.StateTable) ([]float64, error) {
	ids := t.IDWalkers()
	scores := make([]float64, len(ids))
	for i, id := range ids {
		v := c.visits[id]
		scores[i] = 1.0 / math.Sqrt(float64(v+1))
		c.visits[id] = v + 1
	}
	return scores, nil
}
