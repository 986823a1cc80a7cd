package callback

import "github.com/verboid/fragile/internal/table"

// EarlyStop requests termination once the alive population's best
// cum_reward fails to strictly improve for Patience consecutive epochs. It
// is the one built-in callback that exercises RequestStop from inside a
// hook rather than from the orchestrator itself.
type EarlyStop struct {
	Base
	Patience int
	Minimize bool

	best  float64
	seen  bool
	stale int
}

func NewEarlyStop(patience int) *EarlyStop {
	return &EarlyStop{
		Base:     Base{NameValue: "callback.early_stop"},
		Patience: patience,
	}
}

func (e *EarlyStop) AfterWalkers(t *table.StateTable, stop Stopper) {
	oobs := t.Oobs()
	cum := t.CumRewards()

	found := false
	var candidate float64
	for i, oob := range oobs {
		if oob {
			continue
		}
		if !found || e.better(cum[i], candidate) {
			candidate = cum[i]
			found = true
		}
	}
	if !found {
		return
	}

	if !e.seen || e.better(candidate, e.best) {
		e.best = candidate
		e.seen = true
		e.stale = 0
		return
	}

	e.stale++
	if e.stale >= e.Patience {
		stop.RequestStop()
	}
}

func (e *EarlyStop) better(a, b float64) bool {
	if e.Minimize {
		return a < b
	}
	return a > b
}
