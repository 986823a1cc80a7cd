// Package table implements the swarm's column-oriented walker population:
// a dense, schema-frozen struct-of-slices keyed by column name, one row per
// walker. See StateTable for the full column set and gather semantics.
package table

import (
	"fmt"
	"hash/fnv"

	"github.com/verboid/fragile/internal/fragileerr"
)

// Column names the required columns of the standard schema. Callback- or
// policy-contributed columns may add further float64 columns by name, but
// the sixteen below always exist once a StateTable is built.
type Column string

const (
	ColStates        Column = "states"
	ColObservs       Column = "observs"
	ColActions       Column = "actions"
	ColDt            Column = "dt"
	ColRewards       Column = "rewards"
	ColCumRewards    Column = "cum_rewards"
	ColOobs          Column = "oobs"
	ColTerminals     Column = "terminals"
	ColIDWalkers     Column = "id_walkers"
	ColDistances     Column = "distances"
	ColVirtualReward Column = "virtual_rewards"
	ColCloneProbs    Column = "clone_probs"
	ColWillClone     Column = "will_clone"
	ColCompasDist    Column = "compas_dist"
	ColCompasClone   Column = "compas_clone"
	ColAliveMask     Column = "alive_mask"
)

// Hasher lets an Environment supply a content hash for its own state type.
// Environments that don't implement it fall back to a FNV64a hash of the
// state's fmt.Sprintf("%#v", ...) representation, which is stable enough for
// dedup/statistics purposes but not guaranteed collision-free.
type Hasher interface {
	HashState(state any) int64
}

// Walker is a single exported/imported row: one value per column.
type Walker struct {
	State        any
	Observ       []float64
	Action       any
	Dt           int
	Reward       float32
	CumReward    float64
	Oob          bool
	Terminal     bool
	IDWalker     int64
	Distance     float64
	VirtualReward float64
	CloneProb    float64
	WillClone    bool
	CompasDist   int64
	CompasClone  int64
	AliveMask    bool
	Extra        map[string]float64
}

// StateTable is the swarm's population: N rows, one per walker, dense across
// every column. It is owned exclusively by the orchestrator that drives the
// epoch loop -- nothing here is safe for concurrent writers.
type StateTable struct {
	n int

	states   []any
	observs  [][]float64
	actions  []any
	dt       []int

	rewards    []float32
	cumRewards []float64
	oobs       []bool
	terminals  []bool
	idWalkers  []int64

	distances     []float64
	virtualReward []float64
	cloneProbs    []float64
	willClone     []bool
	compasDist    []int64
	compasClone   []int64
	aliveMask     []bool

	extra  map[string][]float64
	frozen bool
	hasher Hasher
}

// New allocates a StateTable of N walkers with zero-filled columns. extraCols
// declares the names of additional float64 columns contributed by whichever
// Environment/Policy/Callback combination is in play; they are frozen
// alongside the required columns.
func New(n int, hasher Hasher, extraCols ...string) *StateTable {
	t := &StateTable{
		n:             n,
		states:        make([]any, n),
		observs:       make([][]float64, n),
		actions:       make([]any, n),
		dt:            make([]int, n),
		rewards:       make([]float32, n),
		cumRewards:    make([]float64, n),
		oobs:          make([]bool, n),
		terminals:     make([]bool, n),
		idWalkers:     make([]int64, n),
		distances:     make([]float64, n),
		virtualReward: make([]float64, n),
		cloneProbs:    make([]float64, n),
		willClone:     make([]bool, n),
		compasDist:    make([]int64, n),
		compasClone:   make([]int64, n),
		aliveMask:     make([]bool, n),
		extra:         make(map[string][]float64, len(extraCols)),
		hasher:        hasher,
	}
	for i := range t.aliveMask {
		t.aliveMask[i] = true
	}
	for _, name := range extraCols {
		t.extra[name] = make([]float64, n)
	}
	t.frozen = true
	return t
}

// N returns the walker count.
func (t *StateTable) N() int { return t.n }

// HasColumn reports whether name is a known extra (non-required) column.
func (t *StateTable) HasColumn(name string) bool {
	_, ok := t.extra[name]
	return ok
}

// Extra returns the live slice backing a named extra column, for in-place
// read/write by callbacks. Panics if the schema was not frozen with that
// column name.
func (t *StateTable) Extra(name string) []float64 {
	col, ok := t.extra[name]
	if !ok {
		panic((&fragileerr.ErrSchemaMismatch{Column: name, Reason: "unknown column"}).Error())
	}
	return col
}

// --- accessors (read views over the live columns) ---

func (t *StateTable) States() []any            { return t.states }
func (t *StateTable) Observs() [][]float64     { return t.observs }
func (t *StateTable) Actions() []any           { return t.actions }
func (t *StateTable) Dt() []int                { return t.dt }
func (t *StateTable) Rewards() []float32       { return t.rewards }
func (t *StateTable) CumRewards() []float64    { return t.cumRewards }
func (t *StateTable) Oobs() []bool             { return t.oobs }
func (t *StateTable) Terminals() []bool        { return t.terminals }
func (t *StateTable) IDWalkers() []int64       { return t.idWalkers }
func (t *StateTable) Distances() []float64     { return t.distances }
func (t *StateTable) VirtualRewards() []float64 { return t.virtualReward }
func (t *StateTable) CloneProbs() []float64    { return t.cloneProbs }
func (t *StateTable) WillClone() []bool        { return t.willClone }
func (t *StateTable) CompasDist() []int64      { return t.compasDist }
func (t *StateTable) CompasClone() []int64     { return t.compasClone }
func (t *StateTable) AliveMask() []bool        { return t.aliveMask }

// Update overwrites the asserted columns in place. Each slice must have
// length N; a length mismatch returns a *fragileerr.ErrSchemaMismatch.
type Update struct {
	States    []any
	Observs   [][]float64
	Actions   []any
	Dt        []int
	Rewards   []float32
	OobS      []bool
	Terminals []bool
}

func (t *StateTable) Update(u Update) error {
	if err := t.checkLen("states", len(u.States)); u.States != nil && err != nil {
		return err
	}
	if u.States != nil {
		copy(t.states, u.States)
		t.rehashIDs()
	}
	if u.Observs != nil {
		if err := t.checkLen("observs", len(u.Observs)); err != nil {
			return err
		}
		copy(t.observs, u.Observs)
	}
	if u.Actions != nil {
		if err := t.checkLen("actions", len(u.Actions)); err != nil {
			return err
		}
		copy(t.actions, u.Actions)
	}
	if u.Dt != nil {
		if err := t.checkLen("dt", len(u.Dt)); err != nil {
			return err
		}
		copy(t.dt, u.Dt)
	}
	if u.Rewards != nil {
		if err := t.checkLen("rewards", len(u.Rewards)); err != nil {
			return err
		}
		copy(t.rewards, u.Rewards)
	}
	if u.OobS != nil {
		if err := t.checkLen("oobs", len(u.OobS)); err != nil {
			return err
		}
		copy(t.oobs, u.OobS)
		for i, oob := range t.oobs {
			t.aliveMask[i] = !oob
		}
	}
	if u.Terminals != nil {
		if err := t.checkLen("terminals", len(u.Terminals)); err != nil {
			return err
		}
		copy(t.terminals, u.Terminals)
	}
	return nil
}

// UpdateExtra overwrites a named extra column in place.
func (t *StateTable) UpdateExtra(name string, values []float64) error {
	col, ok := t.extra[name]
	if !ok {
		return &fragileerr.ErrSchemaMismatch{Column: name, Reason: "unknown column"}
	}
	if len(values) != len(col) {
		return &fragileerr.ErrSchemaMismatch{Column: name, Reason: fmt.Sprintf("length %d, want %d", len(values), len(col))}
	}
	copy(col, values)
	return nil
}

func (t *StateTable) checkLen(name string, got int) error {
	if got != t.n {
		return &fragileerr.ErrSchemaMismatch{Column: name, Reason: fmt.Sprintf("length %d, want %d", got, t.n)}
	}
	return nil
}

// SetDerived writes the WalkerEngine's per-epoch derived columns
// (distances, virtual_rewards, clone_probs, will_clone, compas_dist,
// compas_clone). Called only by internal/walker.
func (t *StateTable) SetDerived(distances, virtualRewards, cloneProbs []float64, willClone []bool, compasDist, compasClone []int64) {
	copy(t.distances, distances)
	copy(t.virtualReward, virtualRewards)
	copy(t.cloneProbs, cloneProbs)
	copy(t.willClone, willClone)
	copy(t.compasDist, compasDist)
	copy(t.compasClone, compasClone)
}

// SetCumRewards overwrites the running-score column; only the orchestrator
// calls this (rewards are deltas, cum_rewards is the running sum it keeps).
func (t *StateTable) SetCumRewards(v []float64) { copy(t.cumRewards, v) }

func (t *StateTable) rehashIDs() {
	for i, s := range t.states {
		t.idWalkers[i] = t.hashState(s)
	}
}

func (t *StateTable) hashState(s any) int64 {
	if t.hasher != nil {
		return t.hasher.HashState(s)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%#v", s)
	return int64(h.Sum64())
}

// GatherClone overwrites walker i with walker compas[i] in every non-exempt
// column, for every i with willClone[i] == true. exemptObservs, when set,
// leaves `observs` untouched (it's regenerated by the next transition
// anyway). states, actions, dt, rewards, cum_rewards, oobs, terminals,
// id_walkers, alive_mask and every extra column are copied; the derived
// columns written by SetDerived (distances, virtual_rewards, clone_probs,
// will_clone, compas_dist, compas_clone) keep their per-row values. The
// read side is a snapshot taken before any write, so a compas index may be
// read by many destinations and no destination is ever read from after being
// partially overwritten.
func (t *StateTable) GatherClone(willClone []bool, compas []int64, exemptObservs bool) {
	n := t.n
	statesSrc := append([]any(nil), t.states...)
	actionsSrc := append([]any(nil), t.actions...)
	dtSrc := append([]int(nil), t.dt...)
	rewardsSrc := append([]float32(nil), t.rewards...)
	cumSrc := append([]float64(nil), t.cumRewards...)
	oobSrc := append([]bool(nil), t.oobs...)
	termSrc := append([]bool(nil), t.terminals...)
	idSrc := append([]int64(nil), t.idWalkers...)
	aliveSrc := append([]bool(nil), t.aliveMask...)
	var observsSrc [][]float64
	if !exemptObservs {
		observsSrc = append([][]float64(nil), t.observs...)
	}
	extraSrc := make(map[string][]float64, len(t.extra))
	for name, col := range t.extra {
		extraSrc[name] = append([]float64(nil), col...)
	}

	for i := 0; i < n; i++ {
		if !willClone[i] {
			continue
		}
		src := int(compas[i])
		t.states[i] = statesSrc[src]
		t.actions[i] = actionsSrc[src]
		t.dt[i] = dtSrc[src]
		t.rewards[i] = rewardsSrc[src]
		t.cumRewards[i] = cumSrc[src]
		t.oobs[i] = oobSrc[src]
		t.terminals[i] = termSrc[src]
		t.idWalkers[i] = idSrc[src]
		t.aliveMask[i] = aliveSrc[src]
		if !exemptObservs {
			t.observs[i] = observsSrc[src]
		}
		for name, col := range t.extra {
			col[i] = extraSrc[name][src]
		}
	}
}

// ExportWalker returns a single-element copy of every column at index i.
func (t *StateTable) ExportWalker(i int) Walker {
	extra := make(map[string]float64, len(t.extra))
	for name, col := range t.extra {
		extra[name] = col[i]
	}
	return Walker{
		State:         t.states[i],
		Observ:        append([]float64(nil), t.observs[i]...),
		Action:        t.actions[i],
		Dt:            t.dt[i],
		Reward:        t.rewards[i],
		CumReward:     t.cumRewards[i],
		Oob:           t.oobs[i],
		Terminal:      t.terminals[i],
		IDWalker:      t.idWalkers[i],
		Distance:      t.distances[i],
		VirtualReward: t.virtualReward[i],
		CloneProb:     t.cloneProbs[i],
		WillClone:     t.willClone[i],
		CompasDist:    t.compasDist[i],
		CompasClone:   t.compasClone[i],
		AliveMask:     t.aliveMask[i],
		Extra:         extra,
	}
}

// ImportWalker broadcasts a single record to all N rows. Used at reset.
func (t *StateTable) ImportWalker(w Walker) {
	for i := 0; i < t.n; i++ {
		t.states[i] = w.State
		t.observs[i] = append([]float64(nil), w.Observ...)
		t.actions[i] = w.Action
		t.dt[i] = w.Dt
		t.rewards[i] = w.Reward
		t.cumRewards[i] = w.CumReward
		t.oobs[i] = w.Oob
		t.terminals[i] = w.Terminal
		t.idWalkers[i] = w.IDWalker
		t.distances[i] = w.Distance
		t.virtualReward[i] = w.VirtualReward
		t.cloneProbs[i] = w.CloneProb
		t.willClone[i] = w.WillClone
		t.compasDist[i] = w.CompasDist
		t.compasClone[i] = w.CompasClone
		t.aliveMask[i] = w.AliveMask
	}
	for name, v := range w.Extra {
		if col, ok := t.extra[name]; ok {
			for i := range col {
				col[i] = v
			}
		}
	}
}

// ReplaceWalker overwrites row i's states, observs, actions, dt, rewards,
// cum_rewards, oobs, terminals, id_walkers and alive_mask with w's values;
// the derived columns and extra columns of row i are left as they are. Used
// by the orchestrator's optional "pin the best" final step.
func (t *StateTable) ReplaceWalker(i int, w Walker) {
	t.states[i] = w.State
	t.observs[i] = append([]float64(nil), w.Observ...)
	t.actions[i] = w.Action
	t.dt[i] = w.Dt
	t.rewards[i] = w.Reward
	t.cumRewards[i] = w.CumReward
	t.oobs[i] = w.Oob
	t.terminals[i] = w.Terminal
	t.idWalkers[i] = w.IDWalker
	t.aliveMask[i] = w.AliveMask
}
