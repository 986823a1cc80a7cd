// Package fmc implements nested swarm composition: running an inner swarm
// as the transition function of an outer, single-walker swarm, aggregating
// the inner population's first-step actions by majority (discrete) or mean
// (continuous) vote.
package fmc

import (
	"context"
	"fmt"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/environment"
	"github.com/verboid/fragile/internal/policy"
	"github.com/verboid/fragile/internal/swarm"
	"github.com/verboid/fragile/internal/table"
	"github.com/verboid/fragile/internal/walker"
)

// initActionPrefix names the inner swarm's extra column(s) holding the
// first-step action taken by each lineage's root walker. Because extra
// columns are gathered (not clone-exempt) the same as states or
// cum_rewards, a walker that survives repeated cloning still carries the
// action its surviving ancestor took at step zero -- which is what makes
// the majority vote at the end of the run meaningful, rather than just a
// snapshot of uniform-random first picks.
const initActionPrefix = "fmc_init_action"

// recordInitActions is a one-shot callback: on the inner swarm's first
// epoch only, it copies the freshly sampled action column into the extra
// column(s) the rest of the run will clone alongside state.
type recordInitActions struct {
	callback.Base
	discrete    bool
	nActions    int
	columnNames []string
	recorded    bool
}

func (r *recordInitActions) AfterPolicy(t *table.StateTable, stop callback.Stopper) {
	if r.recorded {
		return
	}
	actions := t.Actions()
	if r.discrete {
		vals := make([]float64, len(actions))
		for i, a := range actions {
			vals[i] = float64(a.(int))
		}
		_ = t.UpdateExtra(r.columnNames[0], vals)
	} else {
		for d, name := range r.columnNames {
			vals := make([]float64, len(actions))
			for i, a := range actions {
				vals[i] = a.([]float64)[d]
			}
			_ = t.UpdateExtra(name, vals)
		}
	}
	r.recorded = true
}

// Composer is the explicit adapter exposing an inner swarm as the
// Environment of an outer, N=1 swarm. Beyond configuration it keeps only
// the record of aggregated votes (History and the latest aggregate): each
// outer epoch builds and runs a fresh inner swarm seeded from the outer
// walker's current state and observation.
type Composer struct {
	BaseEnv            environment.Environment
	InnerN             int
	InnerMaxEpochs     int
	InnerPolicyFactory func() policy.Policy
	InnerEngineFactory func() *walker.Engine
	Discrete           bool // true: majority vote over int actions; false: per-dim mean over []float64

	NActions   int // required when Discrete
	ActionDims int // required when !Discrete

	lastAggregate any

	// History records the aggregated action from every outer epoch, in
	// order, for callers/tests inspecting the vote across a run.
	History []any
}

// LastAggregatedAction returns the majority/mean action aggregated over the
// inner swarm's final population at the end of the most recently completed
// outer epoch.
func (c *Composer) LastAggregatedAction() any {
	return c.lastAggregate
}

func (c *Composer) Reset(batchSize int) (environment.ResetResult, error) {
	return c.BaseEnv.Reset(batchSize)
}

func (c *Composer) initActionColumns() []string {
	if c.Discrete {
		return []string{initActionPrefix}
	}
	names := make([]string, c.ActionDims)
	for d := range names {
		names[d] = fmt.Sprintf("%s_%d", initActionPrefix, d)
	}
	return names
}

// MakeTransitions runs one inner swarm to completion per outer walker in the
// batch (the outer swarm is always N=1 in practice, but this loops
// generally), seeding the inner swarm from the outer walker's current state
// and observation, voting over its final population's first-step actions,
// and reporting the inner swarm's best-so-far record as the outer
// transition.
func (c *Composer) MakeTransitions(req environment.TransitionRequest) (environment.TransitionResult, error) {
	n := len(req.States)
	out := environment.TransitionResult{
		States: make([]any, n), Observs: make([][]float64, n),
		Rewards: make([]float32, n), Oobs: make([]bool, n), Terminals: make([]bool, n),
	}

	columns := c.initActionColumns()

	for i := 0; i < n; i++ {
		recorder := &recordInitActions{
			Base:        callback.Base{NameValue: "fmc.record_init_actions"},
			discrete:    c.Discrete,
			nActions:    c.NActions,
			columnNames: columns,
		}
		reg := callback.NewRegistry(recorder)
		inner := swarm.New(
			c.InnerN, c.BaseEnv, swarm.Direct{Env: c.BaseEnv},
			c.InnerPolicyFactory(), c.InnerEngineFactory(), reg,
			swarm.Options{MaxEpochs: c.InnerMaxEpochs, AccumulateRewards: true},
			nil, columns...,
		)
		if err := inner.Reset(); err != nil {
			return environment.TransitionResult{}, fmt.Errorf("fmc: inner reset: %w", err)
		}
		var observ []float64
		if i < len(req.Observs) {
			observ = req.Observs[i]
		}
		inner.Table().ImportWalker(table.Walker{State: req.States[i], Observ: observ})

		if _, err := inner.Run(context.Background()); err != nil {
			return environment.TransitionResult{}, fmt.Errorf("fmc: inner run: %w", err)
		}

		c.lastAggregate = aggregateFromTable(inner.Table(), c.Discrete, c.NActions, columns)
		c.History = append(c.History, c.lastAggregate)

		best := inner.Best()
		out.States[i] = best.State
		out.Observs[i] = best.Observ
		out.Rewards[i] = float32(best.Reward)
	}
	return out, nil
}

// aggregateFromTable votes over the surviving (alive) walkers of a
// finished inner swarm -- falling back to the whole population if none
// survived -- reading the init-action column(s) populated by
// recordInitActions and cloned alongside every walker since.
func aggregateFromTable(t *table.StateTable, discrete bool, nActions int, columnNames []string) any {
	indices := make([]int, 0, t.N())
	for i, alive := range t.AliveMask() {
		if alive {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		indices = make([]int, t.N())
		for i := range indices {
			indices[i] = i
		}
	}

	if discrete {
		col := t.Extra(columnNames[0])
		counts := make([]int, nActions)
		for _, i := range indices {
			a := int(col[i])
			if a >= 0 && a < nActions {
				counts[a]++
			}
		}
		best := 0
		for a, cnt := range counts {
			if cnt > counts[best] {
				best = a
			}
		}
		return best
	}

	dims := len(columnNames)
	sum := make([]float64, dims)
	for _, i := range indices {
		for d, name := range columnNames {
			sum[d] += t.Extra(name)[i]
		}
	}
	for d := range sum {
		sum[d] /= float64(len(indices))
	}
	return sum
}
