// Package election implements Active Elections (§4.6): a bounded set of
// in-flight elections keyed by block root, vote tallying, quorum
// evaluation, and confirmation hand-off to the Confirming Set.
package election

import (
	"sync"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/repregister"
	"github.com/nanolattice/nanod/scheduler"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
)

// expireAfter bounds how long an election may run without reaching quorum
// before the manager gives up on it.
const expireAfter = 5 * time.Minute

// tickInterval is how often the manager's loop re-broadcasts confirm
// requests and checks for expired elections.
const tickInterval = 2 * time.Second

// recentlyConfirmedTTL bounds how long a confirmed hash stays answerable by
// IsConfirmed after its election is released. Callers like the scheduler's
// duplicate-candidate check (§4.5) query IsConfirmed well after the election
// that confirmed a hash has already been torn down, so release must not
// make that hash immediately look unconfirmed.
const recentlyConfirmedTTL = 5 * time.Minute

type managerLogger interface {
	Warnf(format string, args ...interface{})
}

// ConfirmingSet is the subset of confirmingset.Set the manager needs.
type ConfirmingSet interface {
	Add(hash types.Hash)
}

// SuccessorActivator is satisfied by *scheduler.Scheduler.
type SuccessorActivator interface {
	ActivateSuccessors(tx store.ReadTxn, blk *block.Block)
}

// Broadcaster sends confirm-requests; satisfied by the network layer, whose
// network.Node sends each request to every connected channel and does not
// select or sample principal representatives.
type Broadcaster interface {
	BroadcastConfirmReq(root, hash types.Hash)
}

// Vacancy is the per-behaviour admission cap.
type Vacancy struct {
	Priority, Hinted, Optimistic int
}

var DefaultVacancy = Vacancy{Priority: 150, Hinted: 24, Optimistic: 16}

// Manager owns the live election set and the background loop that drives
// confirm-request broadcasts and timeouts.
type Manager struct {
	l            *ledger.Ledger
	s            store.Store
	reps         *repregister.Register
	online       *repregister.OnlineWeight
	onlineMin    types.Amount
	confirming   ConfirmingSet
	successors   SuccessorActivator
	broadcaster  Broadcaster
	em           *events.Emitter
	vacancy      Vacancy
	log          managerLogger

	mu               sync.Mutex
	byRoot           map[types.Hash]*Election
	byHash           map[types.Hash]types.Hash // block hash -> root, for ApplyVote lookup
	recentlyConfirmed map[types.Hash]time.Time
	counts           map[scheduler.Behaviour]int
	stopped          bool
	stopCh           chan struct{}
	wg               sync.WaitGroup
}

// New builds a Manager. confirming/successors/broadcaster may be nil during
// tests that don't exercise those paths.
func New(l *ledger.Ledger, s store.Store, reps *repregister.Register, online *repregister.OnlineWeight,
	onlineWeightMinimum types.Amount, confirming ConfirmingSet, successors SuccessorActivator,
	broadcaster Broadcaster, em *events.Emitter) *Manager {
	return &Manager{
		l: l, s: s, reps: reps, online: online, onlineMin: onlineWeightMinimum,
		confirming: confirming, successors: successors, broadcaster: broadcaster, em: em,
		vacancy: DefaultVacancy,
		log:               nlog.For("election"),
		byRoot:            make(map[types.Hash]*Election),
		byHash:            make(map[types.Hash]types.Hash),
		recentlyConfirmed: make(map[types.Hash]time.Time),
		counts:            make(map[scheduler.Behaviour]int),
		stopCh:            make(chan struct{}),
	}
}

// SetBroadcaster wires the confirm-request broadcaster after construction,
// for callers that must build the network layer (which depends on the vote
// processor, which depends on this Manager as its ElectionSink) before the
// Manager itself can be told how to broadcast. Call before Start.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// SetSuccessorActivator wires the scheduler after construction, for callers
// that must build the Manager before the scheduler (which in turn takes the
// Manager as its Elections dependency). Call before Start.
func (m *Manager) SetSuccessorActivator(s SuccessorActivator) {
	m.successors = s
}

func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	close(m.stopCh)
	m.wg.Wait()
}

// Vacancy reports remaining admission room for behaviour.
func (m *Manager) Vacancy(b scheduler.Behaviour) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := m.limitFor(b)
	return limit - m.counts[b]
}

func (m *Manager) limitFor(b scheduler.Behaviour) int {
	switch b {
	case scheduler.BehaviourPriority:
		return m.vacancy.Priority
	case scheduler.BehaviourHinted:
		return m.vacancy.Hinted
	default:
		return m.vacancy.Optimistic
	}
}

// Insert starts or joins an election for blk's root. If an election already
// exists for that root, blk is tracked as an additional fork candidate
// (§4.6: "forks are tracked together under one election"). The returned
// handle satisfies scheduler.ElectionHandle.
func (m *Manager) Insert(blk *block.Block, b scheduler.Behaviour) (scheduler.ElectionHandle, bool) {
	root := blk.Root()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byRoot[root]; ok {
		e.addCandidate(blk)
		m.byHash[blk.Hash()] = root
		return e, true
	}

	if m.counts[b] >= m.limitFor(b) {
		return nil, false
	}

	e := newElection(root, blk, b)
	m.byRoot[root] = e
	m.byHash[blk.Hash()] = root
	m.counts[b]++
	m.em.Emit(events.Event{Type: events.EventElectionStarted, Hash: blk.Hash()})
	return e, true
}

// Len returns the number of elections currently in flight.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRoot)
}

// IsConfirmed reports whether hash's election (if any) has reached quorum
// on exactly that hash.
func (m *Manager) IsConfirmed(hash types.Hash) bool {
	m.mu.Lock()
	root, ok := m.byHash[hash]
	var e *Election
	if ok {
		e = m.byRoot[root]
	}
	_, recent := m.recentlyConfirmed[hash]
	m.mu.Unlock()
	if recent {
		return true
	}
	if e == nil {
		return false
	}
	winner, confirmed := e.Winner()
	return confirmed && winner == hash
}

// ApplyVote applies v to every election whose root contains one of v's
// hashes (§4.7 step 2-3).
func (m *Manager) ApplyVote(v *vote.Vote) vote.Code {
	weightOf := func(acc types.Account) types.Amount {
		rtx, err := m.s.BeginRead()
		if err != nil {
			return types.ZeroAmount
		}
		defer rtx.Discard()
		w, err := m.l.Weight(rtx, acc)
		if err != nil {
			return types.ZeroAmount
		}
		return w
	}

	delta := repregister.Delta(m.online.Trended(), m.onlineMin)

	best := vote.CodeIgnored
	for _, hash := range v.Hashes {
		m.mu.Lock()
		root, ok := m.byHash[hash]
		var e *Election
		if ok {
			e = m.byRoot[root]
		}
		m.mu.Unlock()
		if e == nil {
			continue
		}

		code, winner := e.applyVote(v, hash, weightOf, delta)
		if code == vote.CodeVote {
			best = code
		} else if best == vote.CodeIgnored {
			best = code
		}
		if winner != nil {
			m.confirm(e, winner)
		}
	}
	m.online.Observe(v.Account)
	return best
}

// confirm finalizes e on winner: hands it to the Confirming Set, schedules
// successor activation, and frees the election's vacancy slot.
func (m *Manager) confirm(e *Election, winner *block.Block) {
	m.em.Emit(events.Event{Type: events.EventElectionConfirmed, Hash: winner.Hash()})
	if m.confirming != nil {
		m.confirming.Add(winner.Hash())
	}
	if m.successors != nil && m.s != nil {
		if rtx, err := m.s.BeginRead(); err == nil {
			m.successors.ActivateSuccessors(rtx, winner)
			rtx.Discard()
		}
	}
	m.release(e)
}

func (m *Manager) release(e *Election) {
	winner, confirmed := e.Winner()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRoot[e.root]; !ok {
		return
	}
	delete(m.byRoot, e.root)
	for h, r := range m.byHash {
		if r == e.root {
			delete(m.byHash, h)
		}
	}
	if confirmed {
		m.recentlyConfirmed[winner] = time.Now()
	}
	m.counts[e.behaviour]--
	m.em.Emit(events.Event{Type: events.EventElectionStopped, Hash: e.root})
}

func (m *Manager) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		elections := make([]*Election, 0, len(m.byRoot))
		for _, e := range m.byRoot {
			elections = append(elections, e)
		}
		now := time.Now()
		for h, confirmedAt := range m.recentlyConfirmed {
			if now.Sub(confirmedAt) > recentlyConfirmedTTL {
				delete(m.recentlyConfirmed, h)
			}
		}
		m.mu.Unlock()

		for _, e := range elections {
			if e.age() > expireAfter {
				e.expire()
				m.release(e)
				continue
			}
			if m.broadcaster != nil {
				if leading, ok := e.Leading(); ok {
					m.broadcaster.BroadcastConfirmReq(e.root, leading.Hash())
				}
			}
		}
	}
}
