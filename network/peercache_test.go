package network

import (
	"testing"
	"time"

	"github.com/nanolattice/nanod/internal/testutil"
)

func TestSnapshotRecordsAddresses(t *testing.T) {
	c := NewPeerCache(testutil.NewMemStore())
	if err := c.Snapshot([]string{"10.0.0.1:7075", "10.0.0.2:7075"}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	addrs, err := c.Addresses()
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("got %d addresses, want 2", len(addrs))
	}
}

func TestSnapshotPrunesStaleEntries(t *testing.T) {
	c := NewPeerCache(testutil.NewMemStore())
	c.eraseCutoff = time.Millisecond
	if err := c.Snapshot([]string{"10.0.0.1:7075"}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := c.Snapshot(nil); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	addrs, err := c.Addresses()
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("got %d addresses, want 0 after erase cutoff", len(addrs))
	}
}
