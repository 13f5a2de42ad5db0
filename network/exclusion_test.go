package network

import "testing"

func TestMisbehavingOnceIsNotExcluded(t *testing.T) {
	e := NewPeerExclusion()
	e.PeerMisbehaved("10.0.0.1")
	if e.IsExcluded("10.0.0.1") {
		t.Fatal("a single misbehaviour should not trigger exclusion")
	}
}

func TestMisbehavingTwiceExcludes(t *testing.T) {
	e := NewPeerExclusion()
	e.PeerMisbehaved("10.0.0.2")
	e.PeerMisbehaved("10.0.0.2")
	if !e.IsExcluded("10.0.0.2") {
		t.Fatal("two misbehaviours should trigger exclusion")
	}
}

func TestUnknownPeerIsNotExcluded(t *testing.T) {
	e := NewPeerExclusion()
	if e.IsExcluded("10.0.0.3") {
		t.Fatal("a peer with no recorded misbehaviour should never be excluded")
	}
}

func TestEvictionDropsTheNearestDeadlineWhenFull(t *testing.T) {
	e := NewPeerExclusion()
	e.maxSize = 2
	e.PeerMisbehaved("10.0.0.10")
	e.PeerMisbehaved("10.0.0.11")
	e.PeerMisbehaved("10.0.0.12")
	if e.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", e.Len())
	}
}
