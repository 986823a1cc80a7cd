// Package swarm implements the SwarmOrchestrator: the callback-driven epoch
// loop composing an Environment, a Policy, and the WalkerEngine, plus reset,
// termination, and best-so-far tracking.
package swarm

import (
	"context"
	"fmt"
	"log"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/environment"
	"github.com/verboid/fragile/internal/policy"
	"github.com/verboid/fragile/internal/table"
	"github.com/verboid/fragile/internal/walker"
)

// Transitioner is satisfied by both *executor.Executor (parallel) and a
// direct, unsharded Environment wrapper (Direct) for small runs.
type Transitioner interface {
	MakeTransitions(ctx context.Context, req environment.TransitionRequest) (environment.TransitionResult, error)
}

// Direct adapts a single Environment to Transitioner without sharding, for
// runs that don't need internal/executor's worker pool.
type Direct struct {
	Env environment.Environment
}

func (d Direct) MakeTransitions(_ context.Context, req environment.TransitionRequest) (environment.TransitionResult, error) {
	return d.Env.MakeTransitions(req)
}

// Best is the single-walker best-so-far record: created at reset, updated
// only when a strictly improving, non-out-of-bounds walker is observed,
// never reset between epochs during a run.
type Best struct {
	State  any
	Observ []float64
	Reward float64
}

// Options configures one swarm run.
type Options struct {
	MaxEpochs           int
	AccumulateRewards   bool
	Minimize            bool
	PinBestOnTerminate  bool // opt-in final overwrite of the last slot with the best-so-far record
	Logger              *log.Logger
}

// Swarm owns the StateTable exclusively and drives the epoch loop.
type Swarm struct {
	n             int
	resetEnv      environment.Environment
	transitioner  Transitioner
	policy        policy.Policy
	engine        *walker.Engine
	callbacks     *callback.Registry
	opts          Options
	hasher        table.Hasher
	extraCols     []string

	tbl   *table.StateTable
	best  Best
	epoch int
}

func New(
	n int,
	resetEnv environment.Environment,
	transitioner Transitioner,
	pol policy.Policy,
	engine *walker.Engine,
	callbacks *callback.Registry,
	opts Options,
	hasher table.Hasher,
	extraCols ...string,
) *Swarm {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Swarm{
		n: n, resetEnv: resetEnv, transitioner: transitioner, policy: pol,
		engine: engine, callbacks: callbacks, opts: opts, hasher: hasher,
		extraCols: extraCols,
	}
}

// Table exposes the live StateTable for inspection between/after runs.
func (s *Swarm) Table() *table.StateTable { return s.tbl }

// Best returns the current best-so-far record.
func (s *Swarm) Best() Best { return s.best }

// Reset seeds the population: env.Reset broadcasts one starting record to
// all N walkers, cum_rewards and oobs are zeroed, and the best-so-far record
// is seeded from the (identical) reset walker.
func (s *Swarm) Reset() error {
	result, err := s.resetEnv.Reset(s.n)
	if err != nil {
		return fmt.Errorf("swarm: env reset: %w", err)
	}
	s.tbl = table.New(s.n, s.hasher, s.extraCols...)
	s.tbl.ImportWalker(table.Walker{
		State:  result.State,
		Observ: result.Observ,
	})
	zeros := make([]float64, s.n)
	s.tbl.SetCumRewards(zeros)

	s.callbacks.BeforeReset(s.tbl)
	s.callbacks.AfterReset(s.tbl)

	w := s.tbl.ExportWalker(0)
	s.best = Best{State: w.State, Observ: w.Observ, Reward: w.CumReward}
	s.epoch = 0
	return nil
}

// Run drives the epoch loop to termination: all walkers oob, max_epochs
// reached, or a callback requesting stop. It returns the epoch count
// completed. Fatal errors from Policy/Environment/WalkerEngine propagate to
// the caller; cancellation via ctx returns the partially advanced state with
// a nil error (graceful termination).
func (s *Swarm) Run(ctx context.Context) (int, error) {
	if s.tbl == nil {
		if err := s.Reset(); err != nil {
			return 0, err
		}
	}
	s.callbacks.RunStart(s.tbl)
	s.opts.Logger.Printf("swarm: run_start n=%d max_epochs=%d", s.n, s.opts.MaxEpochs)

	for {
		select {
		case <-ctx.Done():
			s.opts.Logger.Printf("swarm: cancelled at epoch %d", s.epoch)
			s.finish()
			return s.epoch, nil
		default:
		}

		if s.opts.MaxEpochs > 0 && s.epoch >= s.opts.MaxEpochs {
			s.opts.Logger.Printf("swarm: terminate: max_epochs reached at %d", s.epoch)
			break
		}

		if err := s.stepEpoch(ctx); err != nil {
			if ctx.Err() != nil {
				s.opts.Logger.Printf("swarm: cancelled at epoch %d", s.epoch)
				s.finish()
				return s.epoch, nil
			}
			return s.epoch, err
		}
		s.epoch++

		if allOob(s.tbl.Oobs()) {
			s.opts.Logger.Printf("swarm: terminate: all walkers out of bounds at epoch %d", s.epoch)
			break
		}
		if s.callbacks.Stop() {
			s.opts.Logger.Printf("swarm: terminate: callback requested stop at epoch %d", s.epoch)
			break
		}
	}

	s.finish()
	return s.epoch, nil
}

func (s *Swarm) finish() {
	if s.opts.PinBestOnTerminate && s.n > 0 {
		s.tbl.ReplaceWalker(s.n-1, table.Walker{
			State:     s.best.State,
			Observ:    s.best.Observ,
			CumReward: s.best.Reward,
		})
	}
	s.callbacks.RunEnd(s.tbl)
}

func (s *Swarm) stepEpoch(ctx context.Context) error {
	s.callbacks.BeforePolicy(s.tbl)
	sample, err := s.policy.Sample(s.tbl)
	if err != nil {
		return fmt.Errorf("swarm: policy sample: %w", err)
	}
	if err := s.tbl.Update(table.Update{Actions: sample.Actions, Dt: sample.Dt}); err != nil {
		return err
	}
	s.callbacks.AfterPolicy(s.tbl)

	s.callbacks.BeforeEnv(s.tbl)
	var dt []int
	if sample.Dt != nil {
		dt = s.tbl.Dt()
	}
	req := environment.TransitionRequest{
		States:  s.tbl.States(),
		Observs: s.tbl.Observs(),
		Actions: s.tbl.Actions(),
		Dt:      dt,
	}
	result, err := s.transitioner.MakeTransitions(ctx, req)
	if err != nil {
		return fmt.Errorf("swarm: make_transitions: %w", err)
	}

	newCum := make([]float64, s.n)
	if s.opts.AccumulateRewards {
		for i, prev := range s.tbl.CumRewards() {
			newCum[i] = prev + float64(result.Rewards[i])
		}
	} else {
		for i, r := range result.Rewards {
			newCum[i] = float64(r)
		}
	}
	s.tbl.SetCumRewards(newCum)
	if err := s.tbl.Update(table.Update{
		States: result.States, Observs: result.Observs, Rewards: result.Rewards,
		OobS: result.Oobs, Terminals: result.Terminals,
	}); err != nil {
		return err
	}
	s.callbacks.AfterEnv(s.tbl)

	s.callbacks.BeforeWalkers(s.tbl)
	if err := s.engine.Balance(s.tbl); err != nil {
		return fmt.Errorf("swarm: walker balance: %w", err)
	}
	s.updateBest()
	s.callbacks.AfterWalkers(s.tbl)
	s.callbacks.AfterEvolve(s.tbl)
	return nil
}

// updateBest recomputes the best-so-far candidate: among alive walkers, the
// argmax (argmin if minimize) of cum_rewards is the candidate; it replaces
// the prior best only if it strictly improves on it.
func (s *Swarm) updateBest() {
	oobs := s.tbl.Oobs()
	cum := s.tbl.CumRewards()
	best := -1
	for i, oob := range oobs {
		if oob {
			continue
		}
		if best == -1 || better(cum[i], cum[best], s.opts.Minimize) {
			best = i
		}
	}
	if best == -1 {
		return
	}
	if strictlyBetter(cum[best], s.best.Reward, s.opts.Minimize) {
		w := s.tbl.ExportWalker(best)
		s.best = Best{State: w.State, Observ: w.Observ, Reward: cum[best]}
	}
}

func better(a, b float64, minimize bool) bool {
	if minimize {
		return a < b
	}
	return a > b
}

func strictlyBetter(candidate, prior float64, minimize bool) bool {
	if minimize {
		return candidate < prior
	}
	return candidate > prior
}

func allOob(oobs []bool) bool {
	if len(oobs) == 0 {
		return false
	}
	for _, oob := range oobs {
		if !oob {
			return false
		}
	}
	return true
}
