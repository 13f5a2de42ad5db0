// Package events is the node's pub/sub broker: every component that
// produces a notable occurrence (a block committed, an election resolved,
// a vote processed) emits it here, and the RPC/WebSocket layers and tests
// subscribe rather than being wired directly into the producer.
package events

import (
	"sync"

	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/types"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockProcessed     EventType = "block_processed"
	EventBlockRejected      EventType = "block_rejected"
	EventCemented           EventType = "cemented"
	EventAlreadyCemented    EventType = "already_cemented"
	EventElectionStarted    EventType = "election_started"
	EventElectionStopped    EventType = "election_stopped"
	EventElectionConfirmed  EventType = "election_confirmed"
	EventVoteProcessed      EventType = "vote_processed"
	EventRepObserved        EventType = "rep_observed"
	EventPeerConnected      EventType = "peer_connected"
	EventPeerDisconnected   EventType = "peer_disconnected"
	EventTelemetry          EventType = "telemetry"
	EventNewUnconfirmedBlock EventType = "new_unconfirmed_block"
)

// Event carries a typed payload emitted after a state change. Not every
// field applies to every EventType; Data holds anything without its own
// field (so the WebSocket notifier can serialise a minimal envelope).
type Event struct {
	Type    EventType      `json:"type"`
	Hash    types.Hash     `json:"hash,omitempty"`
	Account types.Account  `json:"account,omitempty"`
	Channel uint64         `json:"channel,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. Each
// handler is guarded by panic recovery so a misbehaving subscriber (a slow
// or buggy WebSocket fan-out, say) cannot crash the node or halt the
// component that emitted.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					nlog.For("events").WithField("event_type", ev.Type).Errorf("handler panicked: %v", r)
				}
			}()
			h(ev)
		}()
	}
}
