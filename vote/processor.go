package vote

import (
	"sync"

	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/types"
)

// Code classifies how a vote was handled, reported on the emitted event
// (§4.7: "VoteProcessed(vote, channel, source, code)").
type Code int

const (
	CodeVote Code = iota
	CodeReplay
	CodeInvalid
	CodeIgnored
)

func (c Code) String() string {
	switch c {
	case CodeVote:
		return "vote"
	case CodeReplay:
		return "replay"
	case CodeInvalid:
		return "invalid"
	case CodeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ElectionSink is the subset of Active Elections the vote processor needs:
// applying a validated vote's choices to whatever open elections exist on
// the roots it touches.
type ElectionSink interface {
	ApplyVote(v *Vote) Code
}

// WeightFunc resolves a representative's current voting weight, used only
// to order the processor's queue (heavier reps are drained first).
type WeightFunc func(account types.Account) types.Amount

type processorLogger interface {
	Warnf(format string, args ...interface{})
}

type queued struct {
	vote    *Vote
	channel uint64
	weight  types.Amount
}

// maxQueue bounds the vote processor's queue; once full, the lowest-weight
// queued vote is dropped to admit a heavier one.
const maxQueue = 4096

// Processor is the single-queue, weight-prioritised vote intake (§4.7).
type Processor struct {
	sink   ElectionSink
	weight WeightFunc
	em     *events.Emitter
	log    processorLogger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queued
	stopped bool
	wg      sync.WaitGroup
}

func NewProcessor(sink ElectionSink, weight WeightFunc, em *events.Emitter) *Processor {
	p := &Processor{sink: sink, weight: weight, em: em, log: nlog.For("vote_processor")}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Processor) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Add enqueues v for processing, rejecting up front a vote whose signature
// fails so garbage never occupies a queue slot (§4.7 step 1).
func (p *Processor) Add(v *Vote, channel uint64) {
	if !v.Verify() {
		p.em.Emit(events.Event{Type: events.EventVoteProcessed, Account: v.Account, Channel: channel,
			Data: map[string]any{"code": CodeInvalid.String()}})
		return
	}

	w := p.weight(v.Account)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= maxQueue {
		worstIdx := 0
		for i, q := range p.queue {
			if q.weight.Cmp(p.queue[worstIdx].weight) < 0 {
				worstIdx = i
			}
		}
		if w.Cmp(p.queue[worstIdx].weight) <= 0 {
			return
		}
		p.queue = append(p.queue[:worstIdx], p.queue[worstIdx+1:]...)
	}
	p.queue = append(p.queue, queued{vote: v, channel: channel, weight: w})
	p.cond.Signal()
}

func (p *Processor) run() {
	defer p.wg.Done()
	for {
		q, ok := p.next()
		if !ok {
			return
		}
		code := p.sink.ApplyVote(q.vote)
		p.em.Emit(events.Event{
			Type:    events.EventVoteProcessed,
			Account: q.vote.Account,
			Channel: q.channel,
			Data:    map[string]any{"code": code.String()},
		})
	}
}

func (p *Processor) next() (queued, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return queued{}, false
	}
	// Highest weight first.
	best := 0
	for i, q := range p.queue {
		if q.weight.Cmp(p.queue[best].weight) > 0 {
			best = i
		}
	}
	q := p.queue[best]
	p.queue = append(p.queue[:best], p.queue[best+1:]...)
	return q, true
}
