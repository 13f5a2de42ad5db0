package vote

import "github.com/nanolattice/nanod/types"

// maxHashesPerVote bounds how many hashes one generated vote message
// bundles (§4.8: "sent in bundles of up to 12 hashes per vote message").
const maxHashesPerVote = 12

// RequestItem is one (hash, root) pair from an incoming confirm-request.
type RequestItem struct {
	Hash types.Hash
	Root types.Hash
}

// Aggregator answers confirm-requests from the local vote history where
// possible, and generates fresh votes for anything uncached (§4.8).
type Aggregator struct {
	history   *History
	generator *Generator
}

func NewAggregator(history *History, generator *Generator) *Aggregator {
	return &Aggregator{history: history, generator: generator}
}

// Answer returns the votes to send back for items: cached votes where the
// history has one, and the rest freshly generated in shared bundles of up
// to maxHashesPerVote hashes per signed Vote (§4.8).
func (a *Aggregator) Answer(items []RequestItem) []*Vote {
	var out []*Vote
	seen := make(map[types.Hash]bool, len(items))
	var uncached []RequestItem
	for _, it := range items {
		if seen[it.Hash] {
			continue
		}
		seen[it.Hash] = true
		if v, ok := a.history.VoteFor(it.Root, it.Hash); ok {
			out = append(out, v)
			continue
		}
		if a.generator != nil {
			uncached = append(uncached, it)
		}
	}
	for len(uncached) > 0 {
		n := len(uncached)
		if n > maxHashesPerVote {
			n = maxHashesPerVote
		}
		out = append(out, a.generator.RegularBatch(uncached[:n]))
		uncached = uncached[n:]
	}
	return out
}
