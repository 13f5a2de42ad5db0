package election

import (
	"testing"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/internal/testutil"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/repregister"
	"github.com/nanolattice/nanod/scheduler"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
)

const testNow = uint64(1700000000)

type fakeConfirmingSet struct {
	added []types.Hash
}

func (f *fakeConfirmingSet) Add(hash types.Hash) { f.added = append(f.added, hash) }

type fakeSuccessors struct {
	activated []types.Hash
}

func (f *fakeSuccessors) ActivateSuccessors(tx store.ReadTxn, blk *block.Block) {
	f.activated = append(f.activated, blk.Hash())
}

func newFixture(t *testing.T) (*ledger.Ledger, store.Store, *types.KeyPair, *block.Block) {
	t.Helper()
	epochSigner, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate epoch signer: %v", err)
	}
	l := ledger.New(epochSigner.Public)
	s := testutil.NewMemStore()

	kp, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	balance := types.AmountFromUint64(1_000_000)
	genesis := &block.Block{
		Type: block.State, Account: kp.Public, Previous: types.Hash{},
		Representative: kp.Public, Balance: balance, Link: types.Hash{},
	}
	genesis.Sign(kp)

	tx, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if err := l.InitializeGenesis(tx, genesis, testNow); err != nil {
		t.Fatalf("initialize genesis: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return l, s, kp, genesis
}

func newManager(l *ledger.Ledger, s store.Store, onlineMin types.Amount, confirming ConfirmingSet, successors SuccessorActivator) *Manager {
	reps := repregister.New()
	online := repregister.NewOnlineWeight(func(types.Account) types.Amount { return types.ZeroAmount })
	em := events.NewEmitter()
	return New(l, s, reps, online, onlineMin, confirming, successors, nil, em)
}

func TestInsertCreatesNewElection(t *testing.T) {
	l, s, _, genesis := newFixture(t)
	m := newManager(l, s, types.ZeroAmount, nil, nil)

	handle, ok := m.Insert(genesis, scheduler.BehaviourPriority)
	if !ok || handle == nil {
		t.Fatal("expected Insert to admit a new election")
	}
	if !handle.Active() {
		t.Fatal("expected freshly inserted election to be active")
	}
}

func TestInsertJoinsExistingElectionAsForkCandidate(t *testing.T) {
	l, s, kp, genesis := newFixture(t)
	m := newManager(l, s, types.ZeroAmount, nil, nil)

	h1, ok := m.Insert(genesis, scheduler.BehaviourPriority)
	if !ok {
		t.Fatal("expected first insert to succeed")
	}

	fork := &block.Block{
		Type: block.State, Account: kp.Public, Previous: types.Hash{},
		Representative: kp.Public, Balance: types.AmountFromUint64(999), Link: types.Hash{},
	}
	fork.Sign(kp)

	h2, ok := m.Insert(fork, scheduler.BehaviourPriority)
	if !ok {
		t.Fatal("expected the fork to join the same election")
	}
	if h1 != h2 {
		t.Fatal("expected both candidates to share the same election handle")
	}
}

func TestInsertRespectsVacancyLimit(t *testing.T) {
	l, s, _, genesis := newFixture(t)
	m := newManager(l, s, types.ZeroAmount, nil, nil)
	m.vacancy = Vacancy{Priority: 1}

	if _, ok := m.Insert(genesis, scheduler.BehaviourPriority); !ok {
		t.Fatal("expected first election admitted")
	}

	other, _ := types.GenerateKeyPair()
	another := &block.Block{
		Type: block.State, Account: other.Public, Previous: types.Hash{},
		Representative: other.Public, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	another.Sign(other)

	if _, ok := m.Insert(another, scheduler.BehaviourPriority); ok {
		t.Fatal("expected second distinct-root election to be rejected at vacancy 1")
	}
}

func TestApplyVoteConfirmsOnFinalQuorum(t *testing.T) {
	l, s, kp, genesis := newFixture(t)
	confirming := &fakeConfirmingSet{}
	successors := &fakeSuccessors{}
	// onlineMin == the representative's full weight, so delta = balance*67%,
	// comfortably met by the single representative's own weight.
	m := newManager(l, s, types.AmountFromUint64(1_000_000), confirming, successors)

	if _, ok := m.Insert(genesis, scheduler.BehaviourPriority); !ok {
		t.Fatal("expected election to be created")
	}

	v := &vote.Vote{Timestamp: vote.FinalTimestamp, Hashes: []types.Hash{genesis.Hash()}}
	v.Sign(kp)

	code := m.ApplyVote(v)
	if code != vote.CodeVote {
		t.Fatalf("ApplyVote code = %v, want CodeVote", code)
	}

	if !m.IsConfirmed(genesis.Hash()) {
		t.Fatal("expected genesis to be confirmed after a quorum-meeting final vote")
	}
	if len(confirming.added) != 1 || confirming.added[0] != genesis.Hash() {
		t.Fatalf("expected genesis handed to the confirming set, got %v", confirming.added)
	}
	if len(successors.activated) != 1 {
		t.Fatal("expected successor activation to run after confirmation")
	}
}

func TestApplyVoteIgnoresUnknownRoot(t *testing.T) {
	l, s, kp, _ := newFixture(t)
	m := newManager(l, s, types.ZeroAmount, nil, nil)

	var unknown types.Hash
	unknown[0] = 0xFF
	v := &vote.Vote{Timestamp: 1, Hashes: []types.Hash{unknown}}
	v.Sign(kp)

	if code := m.ApplyVote(v); code != vote.CodeIgnored {
		t.Fatalf("code = %v, want CodeIgnored for an unknown root", code)
	}
}

func TestManagerStartStopIsResponsive(t *testing.T) {
	l, s, _, _ := newFixture(t)
	m := newManager(l, s, types.ZeroAmount, nil, nil)
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return promptly")
	}
}
