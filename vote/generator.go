package vote

import (
	"github.com/nanolattice/nanod/types"
)

// Generator produces this node's own votes when it is configured as a
// representative (§4.8). A node with no voting key configured returns a nil
// *Generator from the wiring layer and never generates votes.
type Generator struct {
	key     *types.KeyPair
	history *History
	nowMs   func() uint64
}

// NewGenerator builds a Generator that signs with key and records every
// vote it produces in history. nowMs supplies the current time in
// milliseconds (injected so tests can control it).
func NewGenerator(key *types.KeyPair, history *History, nowMs func() uint64) *Generator {
	return &Generator{key: key, history: history, nowMs: nowMs}
}

// Account returns the representative's voting account.
func (g *Generator) Account() types.Account {
	return g.key.Public
}

// Regular generates and caches a non-final vote for hash on root, carrying
// the current millisecond timestamp.
func (g *Generator) Regular(root, hash types.Hash) *Vote {
	return g.generate([]RequestItem{{Root: root, Hash: hash}}, g.nowMs())
}

// Final generates and caches a final vote: the representative commits to
// hash as the only block it will ever vote for on root.
func (g *Generator) Final(root, hash types.Hash) *Vote {
	return g.generate([]RequestItem{{Root: root, Hash: hash}}, FinalTimestamp)
}

// RegularBatch generates one non-final vote covering every item's hash
// (§4.8: uncached hashes are "sent in bundles of up to 12 hashes per vote
// message"), signing once instead of once per hash.
func (g *Generator) RegularBatch(items []RequestItem) *Vote {
	return g.generate(items, g.nowMs())
}

// FinalBatch is RegularBatch's final-vote counterpart.
func (g *Generator) FinalBatch(items []RequestItem) *Vote {
	return g.generate(items, FinalTimestamp)
}

func (g *Generator) generate(items []RequestItem, timestamp uint64) *Vote {
	hashes := make([]types.Hash, len(items))
	for i, it := range items {
		hashes[i] = it.Hash
	}
	v := &Vote{Timestamp: timestamp, Hashes: hashes}
	v.Sign(g.key)
	for _, it := range items {
		g.history.Add(it.Root, it.Hash, v)
	}
	return v
}
