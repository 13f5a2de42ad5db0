// Package scheduler implements the Priority Scheduler (§4.5): it partitions
// unconfirmed accounts into log-scale balance buckets and promotes their
// next unconfirmed block into Active Elections as bucket vacancy allows.
package scheduler

import (
	"math/big"
	"sync"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Behaviour tags why an election was started; Active Elections enforces
// separate vacancy caps per behaviour so none starves the others (§4.6).
type Behaviour int

const (
	BehaviourPriority Behaviour = iota
	BehaviourHinted
	BehaviourOptimistic
)

// ElectionHandle lets a bucket track whether an election it started is
// still live without importing the election package.
type ElectionHandle interface {
	// Active reports whether the election is still Passive/Active (not yet
	// Confirmed or Expired).
	Active() bool
}

// Elections is the subset of Active Elections the scheduler depends on.
// Kept as an interface so scheduler and election have no import cycle; the
// daemon wiring layer supplies the concrete *election.Manager.
type Elections interface {
	Vacancy(b Behaviour) int
	Insert(blk *block.Block, b Behaviour) (ElectionHandle, bool)
	IsConfirmed(hash types.Hash) bool
}

type schedulerLogger interface {
	Tracef(format string, args ...interface{})
}

// Scheduler owns the bucket set and the two worker threads: one promotes
// queued candidates into elections, the other ages stale queue entries.
type Scheduler struct {
	l         *ledger.Ledger
	elections Elections
	buckets   []*Bucket
	log       schedulerLogger

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// bucketRegion mirrors §4.5's table: {begin, end, count} spans of the
// balance space, each split into `count` equal-width buckets.
type bucketRegion struct {
	begin, end uint64 // exponent of two; end==127 covers up to max supply
	count      int
}

var regions = []bucketRegion{
	{0, 79, 1},
	{79, 88, 1},
	{88, 92, 2},
	{92, 96, 4},
	{96, 100, 8},
	{100, 104, 16},
	{104, 108, 16},
	{108, 112, 8},
	{112, 116, 4},
	{116, 120, 2},
	{120, 127, 1},
}

// New builds the bucket set from the log-scale region table and wires it to
// elections, which every bucket consults for vacancy/insertion.
func New(l *ledger.Ledger, elections Elections) *Scheduler {
	s := &Scheduler{
		l:         l,
		elections: elections,
		log:       nlog.For("scheduler"),
		stopCh:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, r := range regions {
		begin := new(big.Int).Lsh(big.NewInt(1), uint(r.begin))
		end := new(big.Int).Lsh(big.NewInt(1), uint(r.end))
		if r.begin == 0 {
			begin.SetInt64(0)
		}
		width := new(big.Int).Div(new(big.Int).Sub(end, begin), big.NewInt(int64(r.count)))
		for i := 0; i < r.count; i++ {
			offset := new(big.Int).Mul(width, big.NewInt(int64(i)))
			minBalance := amountFromBig(new(big.Int).Add(begin, offset))
			s.buckets = append(s.buckets, newBucket(minBalance, elections))
		}
	}
	return s
}

// amountFromBig converts a non-negative big.Int (at most 128 bits) to an
// Amount, padding to the fixed 16-byte width.
func amountFromBig(v *big.Int) types.Amount {
	b := v.Bytes()
	padded := make([]byte, types.AmountSize)
	copy(padded[types.AmountSize-len(b):], b)
	a, _ := types.AmountFromBytes(padded)
	return a
}

// Start launches the promotion and cleanup worker threads.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.run()
	go s.runCleanup()
}

// Stop signals both workers to exit and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
}

// Notify wakes the promotion thread without waiting for a new activation
// (e.g. after Active Elections frees a vacancy).
func (s *Scheduler) Notify() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Activate reads account's head and confirmation height and, if there is an
// unconfirmed block, pushes it into the matching bucket (§4.5).
func (s *Scheduler) Activate(tx store.ReadTxn, account types.Account) bool {
	info, err := s.l.GetAccountInfo(tx, account)
	if err != nil {
		return false
	}
	confInfo, err := s.l.GetConfirmationHeight(tx, account)
	if err != nil {
		return false
	}
	if confInfo.Height >= info.BlockCount {
		return false
	}

	var hash types.Hash
	if confInfo.Height == 0 {
		hash = info.Open
	} else {
		hash, err = s.l.Successor(tx, confInfo.Frontier)
		if err != nil {
			return false
		}
	}

	stored, err := s.l.GetBlock(tx, hash)
	if err != nil {
		return false
	}

	balance, _ := stored.Block.BalanceField()
	var prevBalance types.Amount
	if !confInfo.Frontier.IsZero() {
		prevBalance, _ = s.l.Balance(tx, confInfo.Frontier)
	}
	priority := balance
	if prevBalance.Cmp(balance) > 0 {
		priority = prevBalance
	}

	if s.findBucket(priority).push(info.Modified, stored.Block, priority) {
		s.Notify()
		return true
	}
	return false
}

// ActivateSuccessors activates the sending account and, for a send, the
// destination account too, so a receive can follow promptly (§4.5/rsnano
// activate_successors).
func (s *Scheduler) ActivateSuccessors(tx store.ReadTxn, blk *block.Block) {
	if acc, ok := blk.AccountField(); ok {
		s.Activate(tx, acc)
	}
	if dest, ok := blk.DestinationField(); ok && !dest.IsZero() {
		if acc, ok := blk.AccountField(); !ok || dest != acc {
			s.Activate(tx, dest)
		}
	}
}

func (s *Scheduler) findBucket(priority types.Amount) *Bucket {
	result := s.buckets[0]
	for _, b := range s.buckets[1:] {
		if b.canAccept(priority) {
			result = b
		} else {
			break
		}
	}
	return result
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	s.mu.Lock()
	for !s.stopped {
		for !s.stopped && !s.anyAvailable() {
			s.cond.Wait()
		}
		if s.stopped {
			break
		}
		s.mu.Unlock()
		for _, b := range s.buckets {
			if b.available() {
				b.activate()
			}
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
}

func (s *Scheduler) anyAvailable() bool {
	for _, b := range s.buckets {
		if b.available() {
			return true
		}
	}
	return false
}

func (s *Scheduler) runCleanup() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, b := range s.buckets {
				b.update(s.elections.IsConfirmed)
			}
		}
	}
}

// Len returns the total number of queued candidates across all buckets.
func (s *Scheduler) Len() int {
	total := 0
	for _, b := range s.buckets {
		total += b.len()
	}
	return total
}
