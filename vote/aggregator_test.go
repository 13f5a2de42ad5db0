package vote

import (
	"testing"

	"github.com/nanolattice/nanod/types"
)

func TestAggregatorAnswersFromCacheBeforeGenerating(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	cached := &Vote{Account: kp.Public, Timestamp: 5, Hashes: []types.Hash{hash}}
	h.Add(root, hash, cached)

	a := NewAggregator(h, nil)
	out := a.Answer([]RequestItem{{Hash: hash, Root: root}})
	if len(out) != 1 || out[0] != cached {
		t.Fatalf("expected cached vote returned, got %v", out)
	}
}

func TestAggregatorGeneratesWhenUncached(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	g := NewGenerator(kp, h, func() uint64 { return 1 })
	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	a := NewAggregator(h, g)
	out := a.Answer([]RequestItem{{Hash: hash, Root: root}})
	if len(out) != 1 {
		t.Fatalf("expected one generated vote, got %d", len(out))
	}
	if !out[0].Verify() {
		t.Fatal("generated vote does not verify")
	}
	if _, ok := h.VoteFor(root, hash); !ok {
		t.Fatal("generated vote was not cached")
	}
}

func TestAggregatorDedupesRepeatedHashes(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	g := NewGenerator(kp, h, func() uint64 { return 1 })
	var root, hash types.Hash
	root[0], hash[0] = 1, 2

	a := NewAggregator(h, g)
	out := a.Answer([]RequestItem{{Hash: hash, Root: root}, {Hash: hash, Root: root}})
	if len(out) != 1 {
		t.Fatalf("expected duplicate hash collapsed to one answer, got %d", len(out))
	}
}

func TestAggregatorBundlesUncachedHashesIntoOneVote(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	g := NewGenerator(kp, h, func() uint64 { return 1 })

	var items []RequestItem
	for i := 0; i < 5; i++ {
		var root, hash types.Hash
		root[0], hash[0] = byte(i+1), byte(i+1)
		items = append(items, RequestItem{Root: root, Hash: hash})
	}

	a := NewAggregator(h, g)
	out := a.Answer(items)
	if len(out) != 1 {
		t.Fatalf("expected all 5 uncached hashes bundled into one vote, got %d votes", len(out))
	}
	if len(out[0].Hashes) != 5 {
		t.Fatalf("expected the bundled vote to carry 5 hashes, got %d", len(out[0].Hashes))
	}
	for _, it := range items {
		if cached, ok := h.VoteFor(it.Root, it.Hash); !ok || cached != out[0] {
			t.Fatalf("expected bundled vote cached under root %v", it.Root)
		}
	}
}

func TestAggregatorSplitsBundlesAtMaxHashesPerVote(t *testing.T) {
	kp, _ := types.GenerateKeyPair()
	h := NewHistory()
	g := NewGenerator(kp, h, func() uint64 { return 1 })

	var items []RequestItem
	for i := 0; i < maxHashesPerVote+1; i++ {
		var root, hash types.Hash
		root[0], root[1] = byte(i>>8)+1, byte(i)
		hash[0], hash[1] = byte(i>>8)+1, byte(i)
		items = append(items, RequestItem{Root: root, Hash: hash})
	}

	a := NewAggregator(h, g)
	out := a.Answer(items)
	if len(out) != 2 {
		t.Fatalf("expected %d hashes split into 2 votes, got %d", maxHashesPerVote+1, len(out))
	}
	if len(out[0].Hashes) != maxHashesPerVote {
		t.Fatalf("expected first vote to carry %d hashes, got %d", maxHashesPerVote, len(out[0].Hashes))
	}
	if len(out[1].Hashes) != 1 {
		t.Fatalf("expected second vote to carry the 1 remaining hash, got %d", len(out[1].Hashes))
	}
}
