package vote

import (
	"testing"

	"github.com/nanolattice/nanod/types"
)

func TestGeneratorRegularCachesInHistory(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	var clock uint64 = 1000
	g := NewGenerator(kp, h, func() uint64 { return clock })

	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	v := g.Regular(root, hash)
	if v.Timestamp != clock {
		t.Fatalf("timestamp = %d, want %d", v.Timestamp, clock)
	}
	if !v.Verify() {
		t.Fatal("generated vote does not verify")
	}
	if cached, ok := h.VoteFor(root, hash); !ok || cached != v {
		t.Fatal("generator did not cache the vote in history")
	}
}

func TestGeneratorFinalUsesSentinelTimestamp(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	g := NewGenerator(kp, h, func() uint64 { return 1 })

	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	v := g.Final(root, hash)
	if !v.IsFinal() {
		t.Fatal("expected Final to produce a final vote")
	}
}

func TestGeneratorAccount(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	g := NewGenerator(kp, NewHistory(), func() uint64 { return 0 })
	if g.Account() != kp.Public {
		t.Fatal("Account() did not return the generator's key")
	}
}
