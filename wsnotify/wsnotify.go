// Package wsnotify fans events.Emitter occurrences out to WebSocket
// clients (§4.14): each connection chooses its own topic subscriptions and
// only receives envelopes for topics it has subscribed to, mirroring the
// subscribe/unsubscribe/ack session protocol described for the reference
// node's websocket server.
package wsnotify

import (
	"encoding/json"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/nlog"
)

// Topic names the event streams clients may subscribe to.
type Topic string

const (
	TopicConfirmation       Topic = "confirmation"
	TopicStartedElection    Topic = "started_election"
	TopicStoppedElection    Topic = "stopped_election"
	TopicVote               Topic = "vote"
	TopicTelemetry          Topic = "telemetry"
	TopicNewUnconfirmedBlock Topic = "new_unconfirmed_block"
)

// topicForEvent maps an emitter event to the websocket topic it is
// published under; events with no mapping are not published at all.
func topicForEvent(t events.EventType) (Topic, bool) {
	switch t {
	case events.EventElectionConfirmed:
		return TopicConfirmation, true
	case events.EventElectionStarted:
		return TopicStartedElection, true
	case events.EventElectionStopped:
		return TopicStoppedElection, true
	case events.EventVoteProcessed:
		return TopicVote, true
	case events.EventTelemetry:
		return TopicTelemetry, true
	case events.EventNewUnconfirmedBlock:
		return TopicNewUnconfirmedBlock, true
	default:
		return "", false
	}
}

// Envelope is the JSON message written to a subscribed client.
type Envelope struct {
	Topic   Topic          `json:"topic,omitempty"`
	Ack     string         `json:"ack,omitempty"`
	ID      string         `json:"id,omitempty"`
	Message map[string]any `json:"message,omitempty"`
}

// IncomingMessage is a client->server control message: subscribe,
// unsubscribe, or ping.
type IncomingMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	ID     string `json:"id,omitempty"`
	Ack    bool   `json:"ack,omitempty"`
}

type hubLogger interface {
	Warnf(format string, args ...interface{})
	Tracef(format string, args ...interface{})
}

// Hub owns the set of live client connections and subscribes itself to
// every topic-bearing event type on em at construction.
type Hub struct {
	em  *events.Emitter
	log hubLogger

	mu      sync.Mutex
	clients map[*client]bool
}

// NewHub builds a Hub wired to em; call Handler to obtain an
// http.Handler that accepts upgrade requests.
func NewHub(em *events.Emitter) *Hub {
	h := &Hub{em: em, log: nlog.For("wsnotify"), clients: make(map[*client]bool)}
	for _, t := range []events.EventType{
		events.EventElectionConfirmed,
		events.EventElectionStarted,
		events.EventElectionStopped,
		events.EventVoteProcessed,
		events.EventTelemetry,
		events.EventNewUnconfirmedBlock,
	} {
		em.Subscribe(t, h.dispatch)
	}
	return h
}

func (h *Hub) dispatch(ev events.Event) {
	topic, ok := topicForEvent(ev.Type)
	if !ok {
		return
	}
	msg := map[string]any{}
	for k, v := range ev.Data {
		msg[k] = v
	}
	if !ev.Hash.IsZero() {
		msg["hash"] = ev.Hash.String()
	}
	if !ev.Account.IsZero() {
		msg["account"] = ev.Account.String()
	}
	env := Envelope{Topic: topic, Message: msg}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.publish(env)
	}
}

// Handler returns a websocket.Handler suitable for mounting on an
// http.ServeMux path (e.g. the node's websocket_listen_address).
func (h *Hub) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		c := newClient(ws)
		h.mu.Lock()
		h.clients[c] = true
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
		}()
		c.run(h.log)
	}
}

// Len reports the number of live client connections, for telemetry.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// client is one subscribed websocket connection.
type client struct {
	ws   *websocket.Conn
	send chan Envelope

	mu   sync.Mutex
	subs map[Topic]bool
}

const clientSendBuffer = 256

func newClient(ws *websocket.Conn) *client {
	return &client{ws: ws, send: make(chan Envelope, clientSendBuffer), subs: make(map[Topic]bool)}
}

func (c *client) publish(env Envelope) {
	c.mu.Lock()
	subscribed := c.subs[env.Topic]
	c.mu.Unlock()
	if !subscribed {
		return
	}
	select {
	case c.send <- env:
	default:
		// Slow consumer: drop rather than block the emitter goroutine.
	}
}

// run drives the read loop (control messages) and write loop (queued
// envelopes) for one connection until either side closes it.
func (c *client) run(log hubLogger) {
	done := make(chan struct{})
	go c.writeLoop(done, log)
	c.readLoop(log)
	close(done)
}

func (c *client) readLoop(log hubLogger) {
	for {
		var raw string
		if err := websocket.Message.Receive(c.ws, &raw); err != nil {
			return
		}
		var in IncomingMessage
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			log.Tracef("wsnotify: bad incoming message: %v", err)
			continue
		}
		c.handle(in)
	}
}

func (c *client) handle(in IncomingMessage) {
	topic := Topic(in.Topic)
	reply := in.Action
	succeeded := false

	switch in.Action {
	case "subscribe":
		c.mu.Lock()
		c.subs[topic] = true
		c.mu.Unlock()
		succeeded = true
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		succeeded = true
	case "ping":
		reply = "pong"
		succeeded = true
	}

	if in.Ack && succeeded {
		c.send <- Envelope{Ack: reply, ID: in.ID}
	}
}

func (c *client) writeLoop(done chan struct{}, log hubLogger) {
	for {
		select {
		case env := <-c.send:
			if err := websocket.JSON.Send(c.ws, env); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
