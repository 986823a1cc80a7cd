// Package telemetry pushes per-epoch swarm snapshots to websocket
// subscribers: fanning one stream of JSON snapshots out to however many
// clients are connected, dropping snapshots for any that fall behind.
package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/gorilla/websocket"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/table"
)

// Snapshot is the JSON payload pushed to every connected client once per
// epoch. BestReward/BestState are recomputed from the table's alive
// walkers directly -- the orchestrator's own strictly-improving best-so-far
// record lives on the Swarm, not on the table a callback sees.
type Snapshot struct {
	Epoch            int     `json:"epoch"`
	N                int     `json:"n"`
	AliveCount       int     `json:"alive_count"`
	BestReward       float64 `json:"best_reward"`
	BestState        any     `json:"best_state"`
	MeanCumReward    float64 `json:"mean_cum_reward"`
	MeanVirtualReward float64 `json:"mean_virtual_reward"`
}

const (
	writeWait  = 1 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans a single snapshot stream out to every connected websocket
// client, dropping the snapshot for a client that falls behind rather than
// blocking the swarm loop publishing into it.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[chan Snapshot]struct{}

	done chan struct{}
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{},
		logger:   logger,
		clients:  make(map[chan Snapshot]struct{}),
		done:     make(chan struct{}),
	}
}

// Publish fans out one snapshot to every currently connected client.
// Clients whose buffer is full are skipped rather than blocking the
// caller (typically the swarm's epoch loop).
func (h *Hub) Publish(s Snapshot) {
	select {
	case <-h.done:
		return
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c <- s:
		default:
			h.logger.Printf("telemetry: dropping snapshot for slow client at epoch %d", s.Epoch)
		}
	}
}

// Close stops accepting new publications; already-registered clients are
// unregistered as their connections close.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) register() chan Snapshot {
	c := make(chan Snapshot, 8)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c chan Snapshot) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP lets a Hub be mounted directly as a handler, e.g.
// http.Handle("/ws", hub).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// ServeWS upgrades the request to a websocket and streams snapshots to it
// until the connection closes or the hub is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		h.logger.Printf("telemetry: upgrade: %v", err)
		return
	}
	defer ws.Close()

	updates := h.register()
	defer h.unregister(updates)

	for s := range channerics.OrDone(h.done, updates) {
		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := ws.WriteJSON(s); err != nil {
			h.logger.Printf("telemetry: write: %v", err)
			return
		}
	}
}

// PushCallback is a callback.Callback that publishes one Snapshot to a Hub
// after every epoch's walker balancing step. It counts its own epoch number
// rather than reading one from the table, since the table carries no epoch
// column.
type PushCallback struct {
	callback.Base
	Hub   *Hub
	epoch int
}

func NewPushCallback(hub *Hub) *PushCallback {
	return &PushCallback{Base: callback.Base{NameValue: "telemetry.push"}, Hub: hub}
}

func (p *PushCallback) AfterWalkers(t *table.StateTable, stop callback.Stopper) {
	snap := Snapshot{Epoch: p.epoch, N: t.N()}
	p.epoch++

	cum := t.CumRewards()
	vr := t.VirtualRewards()
	alive := t.AliveMask()
	states := t.States()
	best := -1
	var cumSum, vrSum float64
	for i, isAlive := range alive {
		cumSum += cum[i]
		vrSum += vr[i]
		if !isAlive {
			continue
		}
		snap.AliveCount++
		if best == -1 || cum[i] > cum[best] {
			best = i
		}
	}
	if t.N() > 0 {
		snap.MeanCumReward = cumSum / float64(t.N())
		snap.MeanVirtualReward = vrSum / float64(t.N())
	}
	if best >= 0 {
		snap.BestReward = cum[best]
		snap.BestState = states[best]
	}
	p.Hub.Publish(snap)
}
