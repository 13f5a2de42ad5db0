package wsnotify

import (
	"encoding/json"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/nanolattice/nanod/events"
)

func newTestServer(t *testing.T) (*Hub, *events.Emitter, string) {
	t.Helper()
	em := events.NewEmitter()
	hub := NewHub(em)
	srv := NewServer("127.0.0.1:0", hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return hub, em, "ws://" + srv.Addr().String() + "/"
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestClientOnlyReceivesSubscribedTopics(t *testing.T) {
	_, em, url := newTestServer(t)
	ws := dialClient(t, url)

	sub := IncomingMessage{Action: "subscribe", Topic: string(TopicVote), Ack: true, ID: "sub1"}
	raw, _ := json.Marshal(sub)
	if err := websocket.Message.Send(ws, string(raw)); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}

	// Wait for the subscribe ack so the subscription is guaranteed
	// registered before the test starts publishing events.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack Envelope
	if err := websocket.JSON.Receive(ws, &ack); err != nil {
		t.Fatalf("receive subscribe ack: %v", err)
	}
	if ack.Ack != "subscribe" || ack.ID != "sub1" {
		t.Fatalf("ack = %+v, want {Ack:subscribe ID:sub1}", ack)
	}

	em.Emit(events.Event{Type: events.EventElectionStarted, Data: map[string]any{"x": 1}})
	em.Emit(events.Event{Type: events.EventVoteProcessed, Data: map[string]any{"code": "vote"}})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Envelope
	if err := websocket.JSON.Receive(ws, &got); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Topic != TopicVote {
		t.Fatalf("topic = %q, want %q (the unsubscribed started_election event should not have arrived first)", got.Topic, TopicVote)
	}
}

func TestPingIsAcknowledged(t *testing.T) {
	_, _, url := newTestServer(t)
	ws := dialClient(t, url)

	ping := IncomingMessage{Action: "ping", ID: "42", Ack: true}
	raw, _ := json.Marshal(ping)
	if err := websocket.Message.Send(ws, string(raw)); err != nil {
		t.Fatalf("send ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Envelope
	if err := websocket.JSON.Receive(ws, &got); err != nil {
		t.Fatalf("receive ack: %v", err)
	}
	if got.Ack != "pong" || got.ID != "42" {
		t.Fatalf("ack = %+v, want {Ack:pong ID:42}", got)
	}
}
