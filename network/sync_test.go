package network

import (
	"testing"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/internal/testutil"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

const bootstrapTestNow = uint64(1700000000)

func newLedgerFixture(t *testing.T) (*ledger.Ledger, store.Store, *types.KeyPair, *block.Block) {
	t.Helper()
	epochSigner, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate epoch signer: %v", err)
	}
	l := ledger.New(epochSigner.Public)
	s := testutil.NewMemStore()

	genesisKP, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis key pair: %v", err)
	}
	genesis := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: types.Hash{},
		Representative: genesisKP.Public, Balance: types.AmountFromUint64(1_000_000), Link: types.Hash{},
	}
	genesis.Sign(genesisKP)

	tx, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if err := l.InitializeGenesis(tx, genesis, bootstrapTestNow); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return l, s, genesisKP, genesis
}

func TestHandleBulkPullStreamsChainOldestFirst(t *testing.T) {
	l, s, genesisKP, genesis := newLedgerFixture(t)
	b := NewBootstrapper(l, s, &fakeBlockSource{})

	serverKP, _ := types.GenerateKeyPair()
	n := NewNode(serverKP, "127.0.0.1:0", nil, nil, nil, nil, nil)
	n.AttachBootstrapper(b)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(n.Stop)

	clientKP, _ := types.GenerateKeyPair()
	client := NewNode(clientKP, "127.0.0.1:0", nil, nil, nil, nil, nil)
	if err := client.Start(); err != nil {
		t.Fatalf("start client: %v", err)
	}
	t.Cleanup(client.Stop)

	ch, err := client.DialForBootstrap(n.listener.Addr().String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	clientBP := &fakeBlockSource{}
	clientBoot := NewBootstrapper(l, s, clientBP)
	if err := clientBoot.RequestBulkPull(ch, genesis.Hash(), types.Hash{}); err != nil {
		t.Fatalf("request bulk pull: %v", err)
	}
	if len(clientBP.entries) != 1 {
		t.Fatalf("queued %d entries, want 1", len(clientBP.entries))
	}
	if clientBP.entries[0].Block.Account != genesisKP.Public {
		t.Fatal("expected the pulled block to be the genesis block")
	}
	if clientBP.entries[0].Source != blockprocessor.SourceBootstrapLegacy {
		t.Fatalf("source = %v, want SourceBootstrapLegacy", clientBP.entries[0].Source)
	}
}

func TestHandleFrontierReqSkipsAccountsBeforeStart(t *testing.T) {
	l, s, genesisKP, _ := newLedgerFixture(t)
	b := NewBootstrapper(l, s, &fakeBlockSource{})

	// Seed a second, independent account so the table has more than one
	// entry and the walk has something to skip over.
	otherKP, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate second account: %v", err)
	}
	high := otherKP.Public
	if bytesCompareAccounts(high, genesisKP.Public) < 0 {
		high = genesisKP.Public
	}
	otherOpen := &block.Block{
		Type: block.State, Account: otherKP.Public, Previous: types.Hash{},
		Representative: otherKP.Public, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	otherOpen.Sign(otherKP)

	tx, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if err := l.InitializeGenesis(tx, otherOpen, bootstrapTestNow); err != nil {
		t.Fatalf("seed second account: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	serverKP, _ := types.GenerateKeyPair()
	n := NewNode(serverKP, "127.0.0.1:0", nil, nil, nil, nil, nil)
	n.AttachBootstrapper(b)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(n.Stop)

	clientKP, _ := types.GenerateKeyPair()
	client := NewNode(clientKP, "127.0.0.1:0", nil, nil, nil, nil, nil)
	if err := client.Start(); err != nil {
		t.Fatalf("start client: %v", err)
	}
	t.Cleanup(client.Stop)

	ch, err := client.DialForBootstrap(n.listener.Addr().String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := ch.Send(MsgFrontierReq, FrontierReqBody{Start: high.String(), Count: 10}); err != nil {
		t.Fatalf("send frontier req: %v", err)
	}
	msg, err := ch.Receive()
	if err != nil {
		t.Fatalf("receive frontier: %v", err)
	}
	var got FrontierBody
	if err := msg.decode(&got); err != nil {
		t.Fatalf("decode frontier: %v", err)
	}
	if got.Account != high.String() {
		t.Fatalf("frontier account = %s, want %s (the lower-sorting account should have been skipped)", got.Account, high.String())
	}
}

func bytesCompareAccounts(a, b types.Account) int {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
