// Package callback implements the swarm's named-hook framework: tagged
// dispatch over a fixed set of epoch lifecycle points, in priority order.
package callback

import (
	"sort"

	"github.com/verboid/fragile/internal/table"
)

// Stopper is the narrow handle a hook uses to request early termination of
// the run it's attached to. *Registry satisfies it.
type Stopper interface {
	RequestStop()
}

// Callback declares a unique Name and the columns it reads/writes, with an
// optional dispatch Priority (lower runs first). Hook methods are no-ops by
// default via Base; a concrete callback embeds Base and overrides only the
// hooks it needs. Every hook receives the owning Registry as a Stopper, so a
// callback can halt the run from inside any hook.
type Callback interface {
	Name() string
	Priority() int
	DefaultInputs() []string
	DefaultOutputs() []string

	BeforeReset(t *table.StateTable, stop Stopper)
	AfterReset(t *table.StateTable, stop Stopper)
	RunStart(t *table.StateTable, stop Stopper)
	RunEnd(t *table.StateTable, stop Stopper)
	BeforePolicy(t *table.StateTable, stop Stopper)
	AfterPolicy(t *table.StateTable, stop Stopper)
	BeforeEnv(t *table.StateTable, stop Stopper)
	AfterEnv(t *table.StateTable, stop Stopper)
	BeforeWalkers(t *table.StateTable, stop Stopper)
	AfterWalkers(t *table.StateTable, stop Stopper)
	AfterEvolve(t *table.StateTable, stop Stopper)
}

// Base is a no-op implementation of every Callback hook; embed it and
// override only what's needed.
type Base struct {
	NameValue     string
	PriorityValue int
	Inputs        []string
	Outputs       []string
}

func (b *Base) Name() string             { return b.NameValue }
func (b *Base) Priority() int            { return b.PriorityValue }
func (b *Base) DefaultInputs() []string  { return b.Inputs }
func (b *Base) DefaultOutputs() []string { return b.Outputs }

func (b *Base) BeforeReset(*table.StateTable, Stopper)   {}
func (b *Base) AfterReset(*table.StateTable, Stopper)    {}
func (b *Base) RunStart(*table.StateTable, Stopper)      {}
func (b *Base) RunEnd(*table.StateTable, Stopper)        {}
func (b *Base) BeforePolicy(*table.StateTable, Stopper)  {}
func (b *Base) AfterPolicy(*table.StateTable, Stopper)   {}
func (b *Base) BeforeEnv(*table.StateTable, Stopper)     {}
func (b *Base) AfterEnv(*table.StateTable, Stopper)      {}
func (b *Base) BeforeWalkers(*table.StateTable, Stopper) {}
func (b *Base) AfterWalkers(*table.StateTable, Stopper)  {}
func (b *Base) AfterEvolve(*table.StateTable, Stopper)   {}

// Registry dispatches hooks to a priority-sorted set of callbacks, and
// carries the orchestrator's cooperative Stop flag that any callback may
// set via the Stopper passed into its own hook calls.
type Registry struct {
	callbacks []Callback
	stop      bool
}

func NewRegistry(callbacks ...Callback) *Registry {
	r := &Registry{callbacks: append([]Callback(nil), callbacks...)}
	sort.SliceStable(r.callbacks, func(i, j int) bool {
		return r.callbacks[i].Priority() < r.callbacks[j].Priority()
	})
	return r
}

// Stop reports whether any callback has requested termination.
func (r *Registry) Stop() bool { return r.stop }

// RequestStop lets a callback (or the orchestrator itself) set the
// cooperative stop flag.
func (r *Registry) RequestStop() { r.stop = true }

func (r *Registry) dispatch(fn func(Callback)) {
	for _, cb := range r.callbacks {
		fn(cb)
	}
}

func (r *Registry) BeforeReset(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.BeforeReset(t, r) })
}
func (r *Registry) AfterReset(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.AfterReset(t, r) })
}
func (r *Registry) RunStart(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.RunStart(t, r) })
}
func (r *Registry) RunEnd(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.RunEnd(t, r) })
}
func (r *Registry) BeforePolicy(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.BeforePolicy(t, r) })
}
func (r *Registry) AfterPolicy(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.AfterPolicy(t, r) })
}
func (r *Registry) BeforeEnv(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.BeforeEnv(t, r) })
}
func (r *Registry) AfterEnv(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.AfterEnv(t, r) })
}
func (r *Registry) BeforeWalkers(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.BeforeWalkers(t, r) })
}
func (r *Registry) AfterWalkers(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.AfterWalkers(t, r) })
}
func (r *Registry) AfterEvolve(t *table.StateTable) {
	r.dispatch(func(cb Callback) { cb.AfterEvolve(t, r) })
}
