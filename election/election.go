package election

import (
	"sync"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/scheduler"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
)

// State is an election's lifecycle stage (§4.6).
type State int

const (
	StatePassive State = iota
	StateActive
	StateConfirmed
	StateExpiredConfirmed
	StateExpiredUnconfirmed
)

// recordedVote is one rep's current choice on this election's root.
type recordedVote struct {
	hash      types.Hash
	timestamp uint64
}

// Election tracks every candidate block on one root (forks share the
// election, §4.6), the votes cast for them, and their running tallies.
type Election struct {
	root      types.Hash
	behaviour scheduler.Behaviour
	started   time.Time

	mu         sync.Mutex
	candidates map[types.Hash]*block.Block
	votes      map[types.Account]recordedVote
	tally      map[types.Hash]types.Amount
	finalTally map[types.Hash]types.Amount
	hasFinal   bool
	state      State
	winner     types.Hash
}

func newElection(root types.Hash, blk *block.Block, behaviour scheduler.Behaviour) *Election {
	e := &Election{
		root:       root,
		behaviour:  behaviour,
		started:    time.Now(),
		candidates: map[types.Hash]*block.Block{blk.Hash(): blk},
		votes:      make(map[types.Account]recordedVote),
		tally:      make(map[types.Hash]types.Amount),
		finalTally: make(map[types.Hash]types.Amount),
		state:      StatePassive,
	}
	return e
}

// Active implements scheduler.ElectionHandle.
func (e *Election) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePassive || e.state == StateActive
}

// State returns the election's current lifecycle state.
func (e *Election) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Winner returns the confirmed hash, if any.
func (e *Election) Winner() (types.Hash, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.winner, e.state == StateConfirmed || e.state == StateExpiredConfirmed
}

// Leading returns the candidate with the highest current tally, for
// broadcasting confirm-requests.
func (e *Election) Leading() (*block.Block, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.candidates) == 0 {
		return nil, false
	}
	var best types.Hash
	var bestTally types.Amount
	first := true
	for h := range e.candidates {
		t := e.tally[h]
		if first || t.Cmp(bestTally) > 0 {
			best, bestTally, first = h, t, false
		}
	}
	return e.candidates[best], true
}

// addCandidate tracks a new fork on this root, if not already present.
func (e *Election) addCandidate(blk *block.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.candidates[blk.Hash()]; !ok {
		e.candidates[blk.Hash()] = blk
	}
}

// applyVote records v's choice under last-writer-wins by (account,
// timestamp), recomputes tallies, and evaluates quorum. weightOf resolves a
// rep's current voting weight; delta is the current quorum threshold.
// Returns the vote.Code and, if the election just confirmed, the winning
// block.
func (e *Election) applyVote(v *vote.Vote, hash types.Hash, weightOf func(types.Account) types.Amount, delta types.Amount) (vote.Code, *block.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateConfirmed || e.state == StateExpiredConfirmed || e.state == StateExpiredUnconfirmed {
		return vote.CodeIgnored, nil
	}
	if _, ok := e.candidates[hash]; !ok {
		return vote.CodeIgnored, nil
	}

	prev, existed := e.votes[v.Account]
	if existed && v.Timestamp <= prev.timestamp {
		return vote.CodeReplay, nil
	}
	e.votes[v.Account] = recordedVote{hash: hash, timestamp: v.Timestamp}
	if v.IsFinal() {
		e.hasFinal = true
	}

	e.recomputeTallies(weightOf)

	if e.state == StatePassive {
		e.state = StateActive
	}

	tally := e.tally[hash]
	finalTally := e.finalTally[hash]
	confirmed := (tally.Cmp(delta) >= 0 && e.hasFinal) || finalTally.Cmp(delta) >= 0
	if confirmed {
		e.state = StateConfirmed
		e.winner = hash
		return vote.CodeVote, e.candidates[hash]
	}
	return vote.CodeVote, nil
}

func (e *Election) recomputeTallies(weightOf func(types.Account) types.Amount) {
	for h := range e.candidates {
		e.tally[h] = types.ZeroAmount
		e.finalTally[h] = types.ZeroAmount
	}
	for acc, rv := range e.votes {
		w := weightOf(acc)
		if sum, overflow := e.tally[rv.hash].Add(w); !overflow {
			e.tally[rv.hash] = sum
		}
		if rv.timestamp == vote.FinalTimestamp {
			if sum, overflow := e.finalTally[rv.hash].Add(w); !overflow {
				e.finalTally[rv.hash] = sum
			}
		}
	}
}

// expire marks the election finished without quorum, classified by whether
// anything was ever confirmed on this root.
func (e *Election) expire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateConfirmed {
		e.state = StateExpiredConfirmed
	} else {
		e.state = StateExpiredUnconfirmed
	}
}

func (e *Election) age() time.Duration {
	return time.Since(e.started)
}
