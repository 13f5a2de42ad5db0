// Package blockprocessor implements the bounded, prioritised producer/
// consumer queue that is the single entry point for blocks entering the
// ledger (§4.3). A single writer goroutine drains batches under one write
// transaction, calling the validator and committing accept-instructions;
// blocks rejected for a missing dependency are parked in the unchecked map
// and re-injected once that dependency is satisfied.
package blockprocessor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/workpool"
)

// Source tags where an entry originated; ordering here is also priority
// order, highest first (§4.3, §6: Live is dropped first under pressure,
// Forced never).
type Source int

const (
	SourceForced Source = iota
	SourceLocal
	SourceLive
	SourceBootstrapLegacy
	SourceBootstrapLazy
	SourceUnchecked
)

func (s Source) String() string {
	switch s {
	case SourceForced:
		return "forced"
	case SourceLocal:
		return "local"
	case SourceLive:
		return "live"
	case SourceBootstrapLegacy:
		return "bootstrap_legacy"
	case SourceBootstrapLazy:
		return "bootstrap_lazy"
	case SourceUnchecked:
		return "unchecked"
	default:
		return "unknown"
	}
}

// Classification is the outcome the processor assigns an entry after
// validation; it is reported on the emitted event and drives unchecked-map
// bookkeeping.
type Classification int

const (
	ClassAccepted Classification = iota
	ClassGapPrevious
	ClassGapSource
	ClassOld
	ClassFork
	ClassBadSignature
	ClassOtherRejection
)

// Entry is one queued unit of work.
type Entry struct {
	Block   *block.Block
	Source  Source
	Channel uint64
}

// unmetDependency maps a validator rejection to the hash the entry is
// waiting on, or the zero hash if the rejection carries no dependency.
func unmetDependency(blk *block.Block, err error) (types.Hash, Classification) {
	switch {
	case errors.Is(err, ledger.ErrGapPrevious):
		prev, _ := blk.PreviousField()
		return prev, ClassGapPrevious
	case errors.Is(err, ledger.ErrGapSource):
		if src, ok := blk.SourceField(); ok {
			return src, ClassGapSource
		}
		if link, ok := blk.LinkField(); ok {
			return link, ClassGapSource
		}
		return types.Hash{}, ClassGapSource
	case errors.Is(err, ledger.ErrOld):
		return types.Hash{}, ClassOld
	case errors.Is(err, ledger.ErrFork):
		return types.Hash{}, ClassFork
	case errors.Is(err, ledger.ErrBadSignature):
		return types.Hash{}, ClassBadSignature
	default:
		return types.Hash{}, ClassOtherRejection
	}
}

// Config bounds queue capacity and batching (§6: block_processor_batch_size,
// block_processor_full_size).
type Config struct {
	BatchMax       int
	BatchMaxTime   time.Duration
	FullSize       int
	UncheckedLimit int
}

// DefaultConfig mirrors config.DefaultConfig's block-processor knobs.
var DefaultConfig = Config{
	BatchMax:       256,
	BatchMaxTime:   100 * time.Millisecond,
	FullSize:       65536,
	UncheckedLimit: 65536,
}

// Processor owns the queue, the unchecked map, and the single writer
// goroutine that drains both against the ledger.
type Processor struct {
	cfg    Config
	l      *ledger.Ledger
	s      store.Store
	policy workpool.Policy
	em     *events.Emitter
	log    processorLogger

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*Entry
	unchecked  map[types.Hash][]*Entry
	uncheckedN int
	stopped    atomic.Bool
	wg         sync.WaitGroup
}

// processorLogger is the narrow slice of *logrus.Entry this package needs.
type processorLogger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// New creates a Processor. Call Start to launch its worker.
func New(l *ledger.Ledger, s store.Store, policy workpool.Policy, em *events.Emitter, cfg Config) *Processor {
	p := &Processor{
		cfg:       cfg,
		l:         l,
		s:         s,
		policy:    policy,
		em:        em,
		log:       nlog.For("block_processor"),
		unchecked: make(map[types.Hash][]*Entry),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the single writer goroutine.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop signals the worker to exit and waits for it to drain.
func (p *Processor) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Add enqueues e, applying §4.3's drop policy when the queue is full: a
// queued Live entry is evicted first to make room for anything else; if
// none is queued, the lowest-priority entry goes instead; Forced is never
// the one evicted, and is itself never dropped even when no room can be
// freed. Local entries are rate-limited independently by the caller
// (e.g. per-channel), not by this capacity check.
func (p *Processor) Add(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.cfg.FullSize {
		if !p.evictForSpace() && e.Source != SourceForced {
			p.log.Warnf("queue full, dropping %s entry for block %s", e.Source, e.Block.Hash())
			return
		}
	}
	p.queue = append(p.queue, e)
	p.cond.Signal()
}

// evictForSpace removes one queued entry to free a slot, preferring a Live
// entry, then the lowest-priority entry that is not Forced. Reports whether
// it evicted anything.
func (p *Processor) evictForSpace() bool {
	for i, e := range p.queue {
		if e.Source == SourceLive {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return true
		}
	}
	worstIdx, worstSource := -1, Source(-1)
	for i, e := range p.queue {
		if e.Source != SourceForced && e.Source > worstSource {
			worstIdx, worstSource = i, e.Source
		}
	}
	if worstIdx == -1 {
		return false
	}
	p.queue = append(p.queue[:worstIdx], p.queue[worstIdx+1:]...)
	return true
}

// run is the single writer: it repeatedly drains up to BatchMax entries (or
// until BatchMaxTime elapses), validates and processes each under one write
// transaction, refreshing between batches (§4.3, §5).
func (p *Processor) run() {
	defer p.wg.Done()
	for {
		batch := p.nextBatch()
		if batch == nil {
			return
		}
		if len(batch) == 0 {
			continue
		}
		p.processBatch(batch)
	}
}

// nextBatch blocks until at least one entry is queued or the processor
// stops, then drains up to BatchMax by priority order.
func (p *Processor) nextBatch() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped.Load() {
		p.cond.Wait()
	}
	if p.stopped.Load() && len(p.queue) == 0 {
		return nil
	}
	sortByPriority(p.queue)
	n := p.cfg.BatchMax
	if n > len(p.queue) {
		n = len(p.queue)
	}
	batch := p.queue[:n]
	p.queue = p.queue[n:]
	out := make([]*Entry, len(batch))
	copy(out, batch)
	return out
}

func sortByPriority(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Source < entries[j-1].Source; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (p *Processor) processBatch(batch []*Entry) {
	tx, err := p.s.BeginWrite()
	if err != nil {
		p.log.Warnf("begin write: %v", err)
		return
	}
	defer tx.Discard()

	now := ledger.Now()
	for _, e := range batch {
		p.processOne(tx, e, now)
	}
	if err := tx.Commit(); err != nil {
		p.log.Warnf("commit batch: %v", err)
	}
}

func (p *Processor) processOne(tx store.WriteTxn, e *Entry, now uint64) {
	instr, err := p.l.Validate(tx, e.Block, p.policy, now)
	hash := e.Block.Hash()
	if err != nil {
		dep, class := unmetDependency(e.Block, err)
		if (class == ClassGapPrevious || class == ClassGapSource) && !dep.IsZero() {
			p.addUnchecked(dep, e)
		}
		p.em.Emit(events.Event{
			Type:    events.EventBlockRejected,
			Hash:    hash,
			Channel: e.Channel,
			Data:    map[string]any{"classification": class, "source": e.Source.String(), "error": err.Error()},
		})
		return
	}
	if err := p.l.Process(tx, e.Block, instr); err != nil {
		p.log.Warnf("process block %s: %v", hash, err)
		return
	}
	p.em.Emit(events.Event{
		Type:    events.EventBlockProcessed,
		Hash:    hash,
		Account: instr.Account,
		Channel: e.Channel,
		Data:    map[string]any{"classification": ClassAccepted, "source": e.Source.String()},
	})
	p.em.Emit(events.Event{Type: events.EventNewUnconfirmedBlock, Hash: hash, Account: instr.Account})
	p.reinjectDependents(hash)
}

// addUnchecked parks e under the hash it is waiting on, bounded by
// UncheckedLimit total entries across all keys (§4.3: "a bounded
// hash-indexed buffer keyed by the missing dependency").
func (p *Processor) addUnchecked(dep types.Hash, e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uncheckedN >= p.cfg.UncheckedLimit {
		return
	}
	p.unchecked[dep] = append(p.unchecked[dep], e)
	p.uncheckedN++
}

// reinjectDependents probes the unchecked map for entries waiting on hash
// and re-enqueues them under source Unchecked (§4.3).
func (p *Processor) reinjectDependents(hash types.Hash) {
	p.mu.Lock()
	waiting, ok := p.unchecked[hash]
	if ok {
		delete(p.unchecked, hash)
		p.uncheckedN -= len(waiting)
	}
	p.mu.Unlock()
	for _, e := range waiting {
		p.Add(&Entry{Block: e.Block, Source: SourceUnchecked, Channel: e.Channel})
	}
}
