package confirmingset

import (
	"testing"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/internal/testutil"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/workpool"
)

const testNow = uint64(1700000000)

func newFixture(t *testing.T) (*ledger.Ledger, store.Store) {
	t.Helper()
	epochSigner, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate epoch signer: %v", err)
	}
	return ledger.New(epochSigner.Public), testutil.NewMemStore()
}

func seedGenesis(t *testing.T, l *ledger.Ledger, tx store.WriteTxn, kp *types.KeyPair, balance types.Amount) *block.Block {
	t.Helper()
	blk := &block.Block{
		Type: block.State, Account: kp.Public, Previous: types.Hash{},
		Representative: kp.Public, Balance: balance, Link: types.Hash{},
	}
	blk.Sign(kp)
	if err := l.InitializeGenesis(tx, blk, testNow); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	return blk
}

// TestCementsChainBackToFrontier confirms a block several hops past the
// current confirmation height and checks every intervening block, not just
// the target, ends up cemented.
func TestCementsChainBackToFrontier(t *testing.T) {
	l, s := newFixture(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()
	total := types.AmountFromUint64(1_000_000)

	tx, _ := s.BeginWrite()
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	var sends []*block.Block
	prev := genesis.Hash()
	balance := total
	for i := 0; i < 3; i++ {
		balance, _ = balance.Sub(types.AmountFromUint64(1000))
		blk := &block.Block{
			Type: block.State, Account: genesisKP.Public, Previous: prev,
			Representative: genesisKP.Public, Balance: balance, Link: types.Hash(destKP.Public),
		}
		blk.Sign(genesisKP)
		instr, err := l.Validate(tx, blk, workpool.Policy{}, testNow+uint64(i)+1)
		if err != nil {
			t.Fatalf("validate send %d: %v", i, err)
		}
		if err := l.Process(tx, blk, instr); err != nil {
			t.Fatalf("process send %d: %v", i, err)
		}
		sends = append(sends, blk)
		prev = blk.Hash()
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	em := events.NewEmitter()
	cemented := make(chan types.Hash, 16)
	em.Subscribe(events.EventCemented, func(ev events.Event) { cemented <- ev.Hash })

	cs := New(l, s, em, DefaultConfig)
	cs.Start()
	defer cs.Stop()

	cs.Add(sends[2].Hash())

	// The walk also cements genesis itself (the chain's first unconfirmed
	// block), so wait for all three sends specifically rather than a fixed
	// event count.
	seen := map[types.Hash]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[sends[0].Hash()] || !seen[sends[1].Hash()] || !seen[sends[2].Hash()] {
		select {
		case h := <-cemented:
			seen[h] = true
		case <-deadline:
			t.Fatalf("timed out, cemented %v", seen)
		}
	}

	rtx, _ := s.BeginRead()
	defer rtx.Discard()
	info, err := l.GetConfirmationHeight(rtx, genesisKP.Public)
	if err != nil {
		t.Fatalf("get confirmation height: %v", err)
	}
	if info.Height != 4 || info.Frontier != sends[2].Hash() {
		t.Fatalf("confirmation height = %+v, want height 4 frontier %s", info, sends[2].Hash())
	}
}

// TestAlreadyCementedEmitsOnce confirms the same hash twice and expects the
// second call to short-circuit with AlreadyCemented rather than re-walking.
func TestAlreadyCementedEmitsOnce(t *testing.T) {
	l, s := newFixture(t)
	genesisKP, _ := types.GenerateKeyPair()
	total := types.AmountFromUint64(1_000_000)

	tx, _ := s.BeginWrite()
	genesis := seedGenesis(t, l, tx, genesisKP, total)
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	em := events.NewEmitter()
	cemented := make(chan types.Hash, 4)
	already := make(chan types.Hash, 4)
	em.Subscribe(events.EventCemented, func(ev events.Event) { cemented <- ev.Hash })
	em.Subscribe(events.EventAlreadyCemented, func(ev events.Event) { already <- ev.Hash })

	cs := New(l, s, em, DefaultConfig)
	cs.Start()
	defer cs.Stop()

	cs.Add(genesis.Hash())
	select {
	case h := <-cemented:
		if h != genesis.Hash() {
			t.Fatalf("cemented wrong hash: %s", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for genesis to cement")
	}

	cs.Add(genesis.Hash())
	select {
	case h := <-already:
		if h != genesis.Hash() {
			t.Fatalf("already-cemented wrong hash: %s", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AlreadyCemented")
	}
}

// TestCementsReceiveSourceAcrossAccounts confirms a receive before its
// source send has been queued; the worker must recurse into the sender's
// account and cement the send first.
func TestCementsReceiveSourceAcrossAccounts(t *testing.T) {
	l, s := newFixture(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()
	total := types.AmountFromUint64(1_000_000)
	sendAmount := types.AmountFromUint64(250_000)
	remaining, _ := total.Sub(sendAmount)

	tx, _ := s.BeginWrite()
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)
	sendInstr, err := l.Validate(tx, send, workpool.Policy{}, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if err := l.Process(tx, send, sendInstr); err != nil {
		t.Fatalf("process send: %v", err)
	}

	open := &block.Block{
		Type: block.State, Account: destKP.Public, Previous: types.Hash{},
		Representative: destKP.Public, Balance: sendAmount, Link: send.Hash(),
	}
	open.Sign(destKP)
	openInstr, err := l.Validate(tx, open, workpool.Policy{}, testNow+2)
	if err != nil {
		t.Fatalf("validate open: %v", err)
	}
	if err := l.Process(tx, open, openInstr); err != nil {
		t.Fatalf("process open: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	em := events.NewEmitter()
	cemented := make(chan types.Hash, 8)
	em.Subscribe(events.EventCemented, func(ev events.Event) { cemented <- ev.Hash })

	cs := New(l, s, em, DefaultConfig)
	cs.Start()
	defer cs.Stop()

	// Only the receive is queued; the send it depends on must be cemented
	// as a side effect.
	cs.Add(open.Hash())

	seen := map[types.Hash]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[send.Hash()] || !seen[open.Hash()] {
		select {
		case h := <-cemented:
			seen[h] = true
		case <-deadline:
			t.Fatalf("timed out, cemented %v", seen)
		}
	}
	if !seen[send.Hash()] || !seen[open.Hash()] {
		t.Fatalf("expected both send and open cemented, got %v", seen)
	}
}
