package vote

import (
	"sync"

	"github.com/nanolattice/nanod/types"
)

// historyCapacity bounds how many roots the cache tracks; oldest root
// (by insertion) is evicted first when full (§4.8: "drops entries over
// capacity (FIFO by insertion)").
const historyCapacity = 2048

// History caches the most recent vote this node generated for each root, so
// the Request Aggregator can answer a confirm-request without re-signing.
type History struct {
	mu      sync.Mutex
	byRoot  map[types.Hash][]entry
	order   []types.Hash
}

type entry struct {
	hash types.Hash
	vote *Vote
}

func NewHistory() *History {
	return &History{byRoot: make(map[types.Hash][]entry)}
}

// Add records vote as the current best vote for hash on root, replacing an
// older vote from the same voter (§4.8).
func (h *History) Add(root, hash types.Hash, v *Vote) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, existed := h.byRoot[root]
	replaced := false
	for i, e := range entries {
		if e.vote.Account == v.Account {
			if v.Timestamp > e.vote.Timestamp || v.IsFinal() {
				entries[i] = entry{hash: hash, vote: v}
			}
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry{hash: hash, vote: v})
	}
	h.byRoot[root] = entries

	if !existed {
		h.order = append(h.order, root)
		if len(h.order) > historyCapacity {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.byRoot, oldest)
		}
	}
}

// Votes returns the cached votes for root, or nil if none are cached.
func (h *History) Votes(root types.Hash) []*Vote {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.byRoot[root]
	out := make([]*Vote, len(entries))
	for i, e := range entries {
		out[i] = e.vote
	}
	return out
}

// VoteFor returns the cached vote for (root, hash) if one exists.
func (h *History) VoteFor(root, hash types.Hash) (*Vote, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.byRoot[root] {
		if e.hash == hash {
			return e.vote, true
		}
	}
	return nil, false
}
