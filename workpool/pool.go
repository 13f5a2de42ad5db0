package workpool

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/types"
)

// request is one queued work-generation job (§4.11: "(root, min_difficulty,
// callback)").
type request struct {
	root       types.Hash
	threshold  uint64
	callback   func(types.Work, bool)
}

// Pool is a fixed-size CPU proof-of-work generator pool. Requests queue on a
// shared slice guarded by a mutex/condvar pair, the same coordination shape
// the teacher uses for its mempool plus a blocking wait for emptiness
// (mirrored from the Block Processor's worker, §5).
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*request
	cancels map[types.Hash]bool
	stopped bool
	workers int
	log     workLogger
}

// workLogger is the narrow slice of *logrus.Entry this package needs,
// avoiding a direct logrus import in this file's field type.
type workLogger interface {
	Warnf(format string, args ...interface{})
}

// NewPool creates a pool with the given number of worker goroutines. Call
// Start to begin processing.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{workers: workers, cancels: make(map[types.Hash]bool), log: nlog.For("work_pool")}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		go p.runWorker()
	}
}

// Submit enqueues an asynchronous work-generation request; cb is invoked
// with (work, true) on success, or (0, false) if the request is cancelled or
// the pool stops before it completes.
func (p *Pool) Submit(root types.Hash, threshold uint64, cb func(types.Work, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		go cb(0, false)
		return
	}
	p.queue = append(p.queue, &request{root: root, threshold: threshold, callback: cb})
	p.cond.Signal()
}

// Generate is a synchronous wrapper around Submit that blocks until the
// request completes, is cancelled, the pool stops, or ctx is done.
func (p *Pool) Generate(ctx context.Context, root types.Hash, threshold uint64) (types.Work, bool) {
	done := make(chan struct{})
	var result types.Work
	var ok bool
	p.Submit(root, threshold, func(w types.Work, success bool) {
		result, ok = w, success
		close(done)
	})
	select {
	case <-done:
		return result, ok
	case <-ctx.Done():
		p.Cancel(root)
		return 0, false
	}
}

// Cancel signals in-flight and queued generators working on root to abandon
// it (§4.11: "Cancel(root) signals in-flight generators to abandon that
// root").
func (p *Pool) Cancel(root types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[root] = true
	kept := p.queue[:0]
	for _, r := range p.queue {
		if r.root == root {
			go r.callback(0, false)
			continue
		}
		kept = append(kept, r)
	}
	p.queue = kept
	p.cond.Broadcast()
}

// Stop drains the queue, calling each callback with (0, false), and marks
// the pool stopped so Submit no longer accepts work (§4.11: "Stop() drains
// the queue calling each callback with nil").
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	pending := p.queue
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()
	for _, r := range pending {
		r.callback(0, false)
	}
}

func (p *Pool) runWorker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		req := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		work, ok := p.generate(req.root, req.threshold)
		req.callback(work, ok)
	}
}

// generate iterates random nonces, hashing blake2b(nonce||root) via
// Difficulty until the result clears threshold, stopping early if root is
// cancelled or the pool stops (§4.11).
func (p *Pool) generate(root types.Hash, threshold uint64) (types.Work, bool) {
	var buf [8]byte
	for i := 0; ; i++ {
		if i%4096 == 0 {
			p.mu.Lock()
			cancelled := p.cancels[root] || p.stopped
			p.mu.Unlock()
			if cancelled {
				return 0, false
			}
		}
		if _, err := rand.Read(buf[:]); err != nil {
			p.log.Warnf("work: rand.Read failed: %v", err)
			continue
		}
		work := types.Work(binary.LittleEndian.Uint64(buf[:]))
		if Difficulty(root, work) >= threshold {
			p.mu.Lock()
			delete(p.cancels, root)
			p.mu.Unlock()
			return work, true
		}
	}
}
