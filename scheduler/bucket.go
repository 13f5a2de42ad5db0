package scheduler

import (
	"sync"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

// maxQueuePerBucket bounds how many candidates a single bucket holds before
// it starts dropping the lowest-priority entry to admit a higher one.
const maxQueuePerBucket = 1000

// candidate is one queued activation: a block waiting to be submitted to
// Active Elections, ordered by (modified ascending, priority descending).
type candidate struct {
	block    *block.Block
	modified uint64
	priority types.Amount
}

// Bucket holds candidates whose priority balance falls in [minBalance, next
// bucket's minBalance), and holds a handle to each election it has live in
// Active Elections. The handles are only pruned by update; admission checks
// Active Elections' Priority vacancy, with no per-bucket election cap.
type Bucket struct {
	minBalance types.Amount
	elections  Elections

	mu    sync.Mutex
	queue []candidate
	live  []ElectionHandle
}

func newBucket(minBalance types.Amount, elections Elections) *Bucket {
	return &Bucket{minBalance: minBalance, elections: elections}
}

// canAccept reports whether priority falls at or above this bucket's floor.
func (b *Bucket) canAccept(priority types.Amount) bool {
	return priority.Cmp(b.minBalance) >= 0
}

// push inserts blk into the bucket's queue in priority order, evicting the
// current lowest-priority entry if the bucket is full and blk outranks it.
// priority is the caller's already-computed max(balance, prevBalance) —
// the same value used to pick this bucket via findBucket — not recomputed
// from blk alone. Reports whether blk was admitted.
func (b *Bucket) push(modified uint64, blk *block.Block, priority types.Amount) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := candidate{block: blk, modified: modified, priority: priority}

	if len(b.queue) >= maxQueuePerBucket {
		worst := b.queue[len(b.queue)-1]
		if !lessCandidate(c, worst) {
			return false
		}
		b.queue = b.queue[:len(b.queue)-1]
	}

	i := 0
	for i < len(b.queue) && lessCandidate(b.queue[i], c) {
		i++
	}
	b.queue = append(b.queue, candidate{})
	copy(b.queue[i+1:], b.queue[i:])
	b.queue[i] = c
	return true
}

// lessCandidate orders by modified timestamp ascending, then priority
// balance descending (§4.5).
func lessCandidate(a, b candidate) bool {
	if a.modified != b.modified {
		return a.modified < b.modified
	}
	return a.priority.Cmp(b.priority) > 0
}

func (b *Bucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bucket) electionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// available reports whether this bucket has room for another live election
// under the Priority behaviour and has something queued to fill it.
func (b *Bucket) available() bool {
	b.mu.Lock()
	hasQueued := len(b.queue) > 0
	b.mu.Unlock()
	return hasQueued && b.elections.Vacancy(BehaviourPriority) > 0
}

// activate pops the head candidate and submits it to Active Elections,
// retaining the returned handle so update can later tell it apart from a
// finished election.
func (b *Bucket) activate() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	c := b.queue[0]
	b.queue = b.queue[1:]
	b.mu.Unlock()

	if handle, ok := b.elections.Insert(c.block, BehaviourPriority); ok {
		b.mu.Lock()
		b.live = append(b.live, handle)
		b.mu.Unlock()
	}
}

// update discards queued entries whose block has since been confirmed by
// another path (e.g. a forwarded vote), and drops live handles for
// elections that have finished (confirmed or expired).
func (b *Bucket) update(isConfirmed func(types.Hash) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.queue[:0]
	for _, c := range b.queue {
		if !isConfirmed(c.block.Hash()) {
			kept = append(kept, c)
		}
	}
	b.queue = kept

	liveKept := b.live[:0]
	for _, h := range b.live {
		if h.Active() {
			liveKept = append(liveKept, h)
		}
	}
	b.live = liveKept
}
