// Package executor implements the parallel environment executor: a worker
// pool that shards a batch of per-walker transition requests across
// goroutine-backed Environment replicas and rejoins results
// deterministically. Each worker is a goroutine with its own private
// Environment replica and a dedicated command channel.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/verboid/fragile/internal/environment"
	"github.com/verboid/fragile/internal/fragileerr"
)

// msgKind enumerates the worker command protocol. ACCESS (reading an
// arbitrary attribute off the worker's Environment replica) is part of the
// protocol this is modeled on, but nothing in this module ever needs to
// read an env attribute outside of Reset/MakeTransitions, so only CALL and
// CLOSE are implemented.
type msgKind int

const (
	msgCall msgKind = iota
	msgClose
)

type workerMsg struct {
	kind  msgKind
	req   environment.TransitionRequest
	reply chan workerReply
}

type workerReply struct {
	worker int
	result environment.TransitionResult
	err    error
	stack  string
}

// Executor shards MakeTransitions calls across NWorkers goroutines, each
// owning an independent Environment replica built by newEnv. Replicas are
// never shared and never touched by the orchestrator directly.
type Executor struct {
	inbox      []chan workerMsg
	done       chan struct{}
	wg         sync.WaitGroup
	rewardSeen floatCounter
}

// New spawns nWorkers worker goroutines, each running its own Environment
// replica produced by newEnv(workerIndex).
func New(nWorkers int, newEnv func(worker int) (environment.Environment, error)) (*Executor, error) {
	if nWorkers <= 0 {
		return nil, &fragileerr.ErrMisconfigured{Reason: "executor: nWorkers must be > 0"}
	}
	e := &Executor{
		inbox: make([]chan workerMsg, nWorkers),
		done:  make(chan struct{}),
	}
	for i := 0; i < nWorkers; i++ {
		env, err := newEnv(i)
		if err != nil {
			return nil, fmt.Errorf("executor: building worker %d env: %w", i, err)
		}
		e.inbox[i] = make(chan workerMsg)
		e.wg.Add(1)
		go func(idx int, env environment.Environment, inbox chan workerMsg) {
			defer e.wg.Done()
			runWorker(idx, env, inbox, e.done, &e.rewardSeen)
		}(i, env, e.inbox[i])
	}
	return e, nil
}

// runWorker is the worker loop: short-poll (~100ms) so it stays responsive
// to done/cancellation between messages.
func runWorker(idx int, env environment.Environment, inbox <-chan workerMsg, done <-chan struct{}, rewardSeen *floatCounter) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			continue
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			switch msg.kind {
			case msgClose:
				msg.reply <- workerReply{worker: idx}
				return
			case msgCall:
				msg.reply <- callWorker(idx, env, msg.req, rewardSeen)
			}
		}
	}
}

func callWorker(idx int, env environment.Environment, req environment.TransitionRequest, rewardSeen *floatCounter) (reply workerReply) {
	defer func() {
		if r := recover(); r != nil {
			reply = workerReply{worker: idx, err: fmt.Errorf("panic: %v", r), stack: string(debug.Stack())}
		}
	}()
	result, err := env.MakeTransitions(req)
	if err != nil {
		return workerReply{worker: idx, err: err}
	}
	var sum float64
	for _, r := range result.Rewards {
		sum += float64(r)
	}
	rewardSeen.add(sum)
	return workerReply{worker: idx, result: result}
}

// MakeTransitions splits req into len(inbox) contiguous chunks of near-equal
// size (the last chunk absorbing any remainder), dispatches one CALL per
// worker, and concatenates the replies back to length N in chunk order --
// deterministic regardless of reply arrival order.
func (e *Executor) MakeTransitions(ctx context.Context, req environment.TransitionRequest) (environment.TransitionResult, error) {
	n := len(req.States)
	nw := len(e.inbox)
	bounds := chunkBounds(n, nw)

	replyChans := make([]chan workerReply, nw)
	for w := 0; w < nw; w++ {
		lo, hi := bounds[w][0], bounds[w][1]
		chunk := environment.TransitionRequest{
			States:  req.States[lo:hi],
			Actions: req.Actions[lo:hi],
		}
		if req.Dt != nil {
			chunk.Dt = req.Dt[lo:hi]
		}
		if req.Observs != nil {
			chunk.Observs = req.Observs[lo:hi]
		}
		replyChans[w] = make(chan workerReply, 1)
		select {
		case e.inbox[w] <- workerMsg{kind: msgCall, req: chunk, reply: replyChans[w]}:
		case <-ctx.Done():
			return environment.TransitionResult{}, ctx.Err()
		case <-e.done:
			return environment.TransitionResult{}, fmt.Errorf("executor: closed")
		}
	}

	out := environment.TransitionResult{
		States:    make([]any, n),
		Observs:   make([][]float64, n),
		Rewards:   make([]float32, n),
		Oobs:      make([]bool, n),
		Terminals: make([]bool, n),
	}

	// channerics.Merge fans the per-worker reply channels into one stream.
	// Each reply is tagged with its worker index, so results are still
	// rejoined by chunk position -- not arrival order -- making the final
	// table deterministic for a fixed (N, N_w) regardless of which worker
	// answers first.
	merged := channerics.Merge(toReadOnlyChans(replyChans))
	received := 0
	for r := range channerics.OrDone(ctx.Done(), merged) {
		if r.err != nil {
			return environment.TransitionResult{}, &fragileerr.ErrWorkerFailed{Worker: r.worker, Stack: r.stack, Err: r.err}
		}
		lo, hi := bounds[r.worker][0], bounds[r.worker][1]
		copy(out.States[lo:hi], r.result.States)
		copy(out.Observs[lo:hi], r.result.Observs)
		copy(out.Rewards[lo:hi], r.result.Rewards)
		copy(out.Oobs[lo:hi], r.result.Oobs)
		copy(out.Terminals[lo:hi], r.result.Terminals)
		received++
		if received == nw {
			break
		}
	}
	if received != nw {
		return environment.TransitionResult{}, ctx.Err()
	}
	return out, nil
}

// chunkBounds returns n's [lo,hi) split across nw near-equal contiguous
// chunks, the last absorbing the remainder. Depends only on n and nw.
func chunkBounds(n, nw int) [][2]int {
	bounds := make([][2]int, nw)
	base := n / nw
	lo := 0
	for w := 0; w < nw; w++ {
		size := base
		if w == nw-1 {
			size = n - lo
		}
		bounds[w] = [2]int{lo, lo + size}
		lo += size
	}
	return bounds
}

func toReadOnlyChans(chans []chan workerReply) []<-chan workerReply {
	out := make([]<-chan workerReply, len(chans))
	for i, c := range chans {
		out[i] = c
	}
	return out
}

// RewardsSeen returns the running sum of every reward any worker has
// reported back across all MakeTransitions calls so far.
func (e *Executor) RewardsSeen() float64 {
	return e.rewardSeen.load()
}

// Close sends CLOSE to every worker and waits for the loops to exit.
func (e *Executor) Close() {
	for _, inbox := range e.inbox {
		reply := make(chan workerReply, 1)
		inbox <- workerMsg{kind: msgClose, reply: reply}
		<-reply
	}
	close(e.done)
	e.wg.Wait()
}
