package vote

import (
	"testing"

	"github.com/nanolattice/nanod/types"
)

func TestHistoryAddAndVoteFor(t *testing.T) {
	h := NewHistory()
	kp, _ := types.GenerateKeyPair()
	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	v := &Vote{Account: kp.Public, Timestamp: 1, Hashes: []types.Hash{hash}}
	h.Add(root, hash, v)

	got, ok := h.VoteFor(root, hash)
	if !ok || got != v {
		t.Fatalf("VoteFor = %v, %v; want %v, true", got, ok, v)
	}
}

func TestHistoryReplacesOlderVoteFromSameVoter(t *testing.T) {
	h := NewHistory()
	kp, _ := types.GenerateKeyPair()
	var root, h1, h2 types.Hash
	root[0], h1[0], h2[0] = 1, 2, 3

	old := &Vote{Account: kp.Public, Timestamp: 1, Hashes: []types.Hash{h1}}
	h.Add(root, h1, old)

	newer := &Vote{Account: kp.Public, Timestamp: 2, Hashes: []types.Hash{h2}}
	h.Add(root, h2, newer)

	votes := h.Votes(root)
	if len(votes) != 1 {
		t.Fatalf("expected the newer vote to replace the older one, got %d entries", len(votes))
	}
	if votes[0] != newer {
		t.Fatalf("expected newer vote retained, got %v", votes[0])
	}
}

func TestHistoryKeepsVotesFromDistinctVoters(t *testing.T) {
	h := NewHistory()
	kp1, _ := types.GenerateKeyPair()
	kp2, _ := types.GenerateKeyPair()
	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	h.Add(root, hash, &Vote{Account: kp1.Public, Timestamp: 1, Hashes: []types.Hash{hash}})
	h.Add(root, hash, &Vote{Account: kp2.Public, Timestamp: 1, Hashes: []types.Hash{hash}})

	if len(h.Votes(root)) != 2 {
		t.Fatalf("expected two distinct voters kept, got %d", len(h.Votes(root)))
	}
}

func TestHistoryEvictsOldestRootWhenFull(t *testing.T) {
	h := NewHistory()
	kp, _ := types.GenerateKeyPair()

	var first types.Hash
	first[0] = 1
	h.Add(first, first, &Vote{Account: kp.Public, Timestamp: 1, Hashes: []types.Hash{first}})

	for i := 0; i < historyCapacity; i++ {
		var root types.Hash
		root[0], root[1] = byte((i>>8)+2), byte(i)
		h.Add(root, root, &Vote{Account: kp.Public, Timestamp: 1, Hashes: []types.Hash{root}})
	}

	if _, ok := h.VoteFor(first, first); ok {
		t.Fatal("expected the oldest root to be evicted once capacity was exceeded")
	}
}
