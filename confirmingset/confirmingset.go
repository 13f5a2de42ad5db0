// Package confirmingset implements the single-writer worker that durably
// marks blocks as cemented once Active Elections has confirmed them (§4.4).
// Add(hash) is hash-in; the worker walks the transitive closure of
// newly-cemented blocks (previous pointers within an account, send->receive
// links across accounts) and emits Cemented/AlreadyCemented events.
package confirmingset

import (
	"fmt"
	"sync"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Config bounds how long one iteration may hold the write transaction before
// yielding to other writers (the block processor).
type Config struct {
	BatchTime time.Duration
}

var DefaultConfig = Config{BatchTime: 250 * time.Millisecond}

type setLogger interface {
	Warnf(format string, args ...interface{})
}

// Set owns the pending hash set and the single worker that drains it.
type Set struct {
	cfg Config
	l   *ledger.Ledger
	s   store.Store
	em  *events.Emitter
	log setLogger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []types.Hash
	queued  map[types.Hash]bool
	stopped bool
	wg      sync.WaitGroup
}

func New(l *ledger.Ledger, s store.Store, em *events.Emitter, cfg Config) *Set {
	cs := &Set{
		cfg:    cfg,
		l:      l,
		s:      s,
		em:     em,
		log:    nlog.For("confirming_set"),
		queued: make(map[types.Hash]bool),
	}
	cs.cond = sync.NewCond(&cs.mu)
	return cs
}

func (cs *Set) Start() {
	cs.wg.Add(1)
	go cs.run()
}

func (cs *Set) Stop() {
	cs.mu.Lock()
	cs.stopped = true
	cs.cond.Broadcast()
	cs.mu.Unlock()
	cs.wg.Wait()
}

// Add appends hash to the pending set unless it is already queued.
func (cs *Set) Add(hash types.Hash) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.queued[hash] {
		return
	}
	cs.queued[hash] = true
	cs.pending = append(cs.pending, hash)
	cs.cond.Signal()
}

// Exists reports whether hash is currently queued for cementing.
func (cs *Set) Exists(hash types.Hash) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.queued[hash]
}

func (cs *Set) run() {
	defer cs.wg.Done()
	for {
		batch := cs.nextBatch()
		if batch == nil {
			return
		}
		cs.processBatch(batch)
	}
}

func (cs *Set) nextBatch() []types.Hash {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for len(cs.pending) == 0 && !cs.stopped {
		cs.cond.Wait()
	}
	if cs.stopped && len(cs.pending) == 0 {
		return nil
	}
	batch := cs.pending
	cs.pending = nil
	return batch
}

func (cs *Set) processBatch(batch []types.Hash) {
	tx, err := cs.s.BeginWrite()
	if err != nil {
		cs.log.Warnf("begin write: %v", err)
		return
	}
	defer tx.Discard()

	deadline := time.Now().Add(cs.cfg.BatchTime)
	for _, hash := range batch {
		cs.mu.Lock()
		delete(cs.queued, hash)
		cs.mu.Unlock()

		if err := cs.cementTo(tx, hash); err != nil {
			cs.log.Warnf("cement %s: %v", hash, err)
		}
		if time.Now().After(deadline) {
			if err := tx.Refresh(); err != nil {
				cs.log.Warnf("refresh: %v", err)
				return
			}
			deadline = time.Now().Add(cs.cfg.BatchTime)
		}
	}
	if err := tx.Commit(); err != nil {
		cs.log.Warnf("commit: %v", err)
	}
}

// cementTo cements every not-yet-cemented block on hash's account chain up
// to and including hash, recursing into any source account a receive along
// the way depends on (§4.4: "across accounts via send->receive links").
func (cs *Set) cementTo(tx store.WriteTxn, hash types.Hash) error {
	sb, err := cs.l.GetBlock(tx, hash)
	if err != nil {
		return fmt.Errorf("get block: %w", err)
	}
	account := sb.Sideband.Account
	height := sb.Sideband.Height

	info, err := cs.l.GetConfirmationHeight(tx, account)
	if err != nil {
		return fmt.Errorf("get confirmation height: %w", err)
	}
	if height <= info.Height {
		cs.em.Emit(events.Event{Type: events.EventAlreadyCemented, Hash: hash, Account: account})
		return nil
	}

	// Walk backward from hash to the first not-yet-cemented block, then
	// cement forward so dependencies (older blocks, and any source chain a
	// receive pulls in) are confirmed before their dependents.
	chain := make([]*block.StoredBlock, 0, height-info.Height)
	cur := sb
	for {
		chain = append(chain, cur)
		if cur.Sideband.Height <= info.Height+1 {
			break
		}
		prev, ok := cur.Block.PreviousField()
		if !ok || prev.IsZero() {
			break
		}
		cur, err = cs.l.GetBlock(tx, prev)
		if err != nil {
			return fmt.Errorf("get predecessor %s: %w", prev, err)
		}
	}

	for i := len(chain) - 1; i >= 0; i-- {
		blk := chain[i]
		if blk.Sideband.Details.IsReceive {
			src, ok := blk.Block.SourceField()
			if !ok {
				src, ok = blk.Block.LinkField()
			}
			if ok && !src.IsZero() {
				if err := cs.cementTo(tx, src); err != nil {
					return fmt.Errorf("cement source %s: %w", src, err)
				}
			}
		}
		newInfo := ledger.ConfirmationHeightInfo{Height: blk.Sideband.Height, Frontier: blk.Block.Hash()}
		if err := cs.l.PutConfirmationHeight(tx, blk.Sideband.Account, newInfo); err != nil {
			return fmt.Errorf("put confirmation height: %w", err)
		}
		cs.em.Emit(events.Event{Type: events.EventCemented, Hash: blk.Block.Hash(), Account: blk.Sideband.Account})
	}
	return nil
}
