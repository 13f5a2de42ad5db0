package ledger

import (
	"errors"
	"testing"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/internal/testutil"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/workpool"
)

// zeroPolicy accepts any work value, so tests can focus on ledger semantics
// instead of mining real proof-of-work.
var zeroPolicy = workpool.Policy{}

const testNow = uint64(1700000000)

// seedGenesis writes a self-funding open block directly, the way a node
// seeds its hardcoded genesis block rather than running it through Validate
// (there is no predecessor chain for Validate to check a genesis block
// against).
func seedGenesis(t *testing.T, l *Ledger, tx store.WriteTxn, kp *types.KeyPair, balance types.Amount) *block.Block {
	t.Helper()
	blk := &block.Block{
		Type:           block.State,
		Account:        kp.Public,
		Previous:       types.Hash{},
		Representative: kp.Public,
		Balance:        balance,
		Link:           types.Hash{},
	}
	blk.Sign(kp)
	if err := l.InitializeGenesis(tx, blk, testNow); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	return blk
}

func newLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	epochSigner, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate epoch signer: %v", err)
	}
	return New(epochSigner.Public), testutil.NewMemStore()
}

func mustWrite(t *testing.T, s store.Store) store.WriteTxn {
	t.Helper()
	tx, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	return tx
}

func TestGenesisAndFirstSend(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	sendAmount := types.AmountFromUint64(400_000)
	remaining, _ := total.Sub(sendAmount)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type:           block.State,
		Account:        genesisKP.Public,
		Previous:       genesis.Hash(),
		Representative: genesisKP.Public,
		Balance:        remaining,
		Link:           types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)

	instr, err := l.Validate(tx, send, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if instr.InsertPending == nil {
		t.Fatal("expected a pending entry to be created for the send")
	}
	if err := l.Process(tx, send, instr); err != nil {
		t.Fatalf("process send: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx, err := s.BeginRead()
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer rtx.Discard()

	bal, err := l.AccountBalance(rtx, genesisKP.Public)
	if err != nil {
		t.Fatalf("account balance: %v", err)
	}
	if bal.Cmp(remaining) != 0 {
		t.Fatalf("balance after send: got %s want %s", bal, remaining)
	}

	pk := PendingKey{Account: destKP.Public, Send: send.Hash()}
	pending, err := l.GetPending(rtx, pk)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if pending.Amount.Cmp(sendAmount) != 0 {
		t.Fatalf("pending amount: got %s want %s", pending.Amount, sendAmount)
	}

	w, err := l.Weight(rtx, genesisKP.Public)
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if w.Cmp(remaining) != 0 {
		t.Fatalf("rep weight after send: got %s want %s", w, remaining)
	}
}

// TestOpenAndReceive carries a send through to a fresh account's open block,
// verifying conservation (sender's loss equals receiver's gain) and that
// representative weight moves to the new account's chosen representative.
func TestOpenAndReceive(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()
	repKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	sendAmount := types.AmountFromUint64(250_000)
	remaining, _ := total.Sub(sendAmount)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)
	instr, err := l.Validate(tx, send, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if err := l.Process(tx, send, instr); err != nil {
		t.Fatalf("process send: %v", err)
	}

	open := &block.Block{
		Type: block.State, Account: destKP.Public, Previous: types.Hash{},
		Representative: repKP.Public, Balance: sendAmount, Link: send.Hash(),
	}
	open.Sign(destKP)
	openInstr, err := l.Validate(tx, open, zeroPolicy, testNow+2)
	if err != nil {
		t.Fatalf("validate open: %v", err)
	}
	if openInstr.DeletePending == nil {
		t.Fatal("expected open to consume the pending entry")
	}
	if err := l.Process(tx, open, openInstr); err != nil {
		t.Fatalf("process open: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx, _ := s.BeginRead()
	defer rtx.Discard()

	if _, err := l.GetPending(rtx, PendingKey{Account: destKP.Public, Send: send.Hash()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("pending entry should be gone after receive, got err=%v", err)
	}
	destBal, err := l.AccountBalance(rtx, destKP.Public)
	if err != nil || destBal.Cmp(sendAmount) != 0 {
		t.Fatalf("dest balance: got %s err %v, want %s", destBal, err, sendAmount)
	}
	genesisW, _ := l.Weight(rtx, genesisKP.Public)
	if genesisW.Cmp(remaining) != 0 {
		t.Fatalf("genesis weight: got %s want %s", genesisW, remaining)
	}
	repW, _ := l.Weight(rtx, repKP.Public)
	if repW.Cmp(sendAmount) != 0 {
		t.Fatalf("rep weight: got %s want %s", repW, sendAmount)
	}
}

func TestDoubleSpendFork(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destA, _ := types.GenerateKeyPair()
	destB, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	remaining := types.AmountFromUint64(900_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	sendA := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destA.Public),
	}
	sendA.Sign(genesisKP)
	instr, err := l.Validate(tx, sendA, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate sendA: %v", err)
	}
	if err := l.Process(tx, sendA, instr); err != nil {
		t.Fatalf("process sendA: %v", err)
	}

	// sendB also claims genesis.Hash() as its previous: a fork.
	sendB := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destB.Public),
	}
	sendB.Sign(genesisKP)
	if _, err := l.Validate(tx, sendB, zeroPolicy, testNow+2); !errors.Is(err, ErrFork) {
		t.Fatalf("expected ErrFork, got %v", err)
	}
}

func TestReingestIsRejectedAsOld(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	remaining := types.AmountFromUint64(600_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)
	instr, err := l.Validate(tx, send, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if err := l.Process(tx, send, instr); err != nil {
		t.Fatalf("process send: %v", err)
	}

	if _, err := l.Validate(tx, send, zeroPolicy, testNow+2); !errors.Is(err, ErrOld) {
		t.Fatalf("expected ErrOld on re-ingest, got %v", err)
	}
}

// TestRollbackRoundTrip verifies that rolling back a send restores the
// sender's prior account info, balance, and representative weight exactly,
// and removes the pending entry the send created.
func TestRollbackRoundTrip(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	remaining := types.AmountFromUint64(750_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	beforeInfo, err := l.GetAccountInfo(tx, genesisKP.Public)
	if err != nil {
		t.Fatalf("account info before send: %v", err)
	}
	beforeWeight, err := l.Weight(tx, genesisKP.Public)
	if err != nil {
		t.Fatalf("weight before send: %v", err)
	}

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)
	instr, err := l.Validate(tx, send, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if err := l.Process(tx, send, instr); err != nil {
		t.Fatalf("process send: %v", err)
	}

	if err := l.Rollback(tx, send.Hash()); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	afterInfo, err := l.GetAccountInfo(tx, genesisKP.Public)
	if err != nil {
		t.Fatalf("account info after rollback: %v", err)
	}
	if afterInfo != beforeInfo {
		t.Fatalf("account info not restored: got %+v want %+v", afterInfo, beforeInfo)
	}
	afterWeight, err := l.Weight(tx, genesisKP.Public)
	if err != nil {
		t.Fatalf("weight after rollback: %v", err)
	}
	if afterWeight.Cmp(beforeWeight) != 0 {
		t.Fatalf("weight not restored: got %s want %s", afterWeight, beforeWeight)
	}
	if l.BlockExists(tx, send.Hash()) {
		t.Fatal("rolled-back block should no longer exist")
	}
	if _, err := l.GetPending(tx, PendingKey{Account: destKP.Public, Send: send.Hash()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("pending entry should be gone after rollback, got err=%v", err)
	}
}

// TestRollbackBelowConfirmationHeightRejected ensures cemented blocks cannot
// be rolled back (§4.2 Rollback).
func TestRollbackBelowConfirmationHeightRejected(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	remaining := types.AmountFromUint64(500_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)
	instr, err := l.Validate(tx, send, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate send: %v", err)
	}
	if err := l.Process(tx, send, instr); err != nil {
		t.Fatalf("process send: %v", err)
	}

	if err := l.PutConfirmationHeight(tx, genesisKP.Public, ConfirmationHeightInfo{Height: 2, Frontier: send.Hash()}); err != nil {
		t.Fatalf("put confirmation height: %v", err)
	}

	if err := l.Rollback(tx, send.Hash()); !errors.Is(err, ErrBelowConfirmationHeight) {
		t.Fatalf("expected ErrBelowConfirmationHeight, got %v", err)
	}
}

// TestEpochUpgradeDoesNotChangeRepresentative verifies an epoch block bumps
// the account's epoch without touching its balance or representative.
func TestEpochUpgradeDoesNotChangeRepresentative(t *testing.T) {
	epochSigner, _ := types.GenerateKeyPair()
	l := New(epochSigner.Public)
	s := testutil.NewMemStore()
	genesisKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	link, _ := block.EpochLink(block.Epoch1)
	epochBlk := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: total, Link: link,
	}
	epochBlk.Sign(epochSigner)

	instr, err := l.Validate(tx, epochBlk, zeroPolicy, testNow+1)
	if err != nil {
		t.Fatalf("validate epoch block: %v", err)
	}
	if !instr.IsEpochBlock {
		t.Fatal("expected epoch block classification")
	}
	if instr.AccountInfo.Epoch != block.Epoch1 {
		t.Fatalf("expected epoch to advance to Epoch1, got %v", instr.AccountInfo.Epoch)
	}
	if instr.AccountInfo.Representative != genesisKP.Public {
		t.Fatalf("epoch block must not change representative")
	}
	if err := l.Process(tx, epochBlk, instr); err != nil {
		t.Fatalf("process epoch block: %v", err)
	}

	w, err := l.Weight(tx, genesisKP.Public)
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if w.Cmp(total) != 0 {
		t.Fatalf("weight must be unchanged by an epoch block: got %s want %s", w, total)
	}
}

func TestInsufficientWorkRejected(t *testing.T) {
	l, s := newLedger(t)
	genesisKP, _ := types.GenerateKeyPair()
	destKP, _ := types.GenerateKeyPair()

	total := types.AmountFromUint64(1_000_000)
	remaining := types.AmountFromUint64(900_000)

	tx := mustWrite(t, s)
	genesis := seedGenesis(t, l, tx, genesisKP, total)

	send := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: genesis.Hash(),
		Representative: genesisKP.Public, Balance: remaining, Link: types.Hash(destKP.Public),
	}
	send.Sign(genesisKP)

	if _, err := l.Validate(tx, send, workpool.DefaultPolicy, testNow+1); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("expected ErrInsufficientWork with an unmined block, got %v", err)
	}
}
