package wallet

import (
	"testing"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

func TestGenerateStoresAndReportsAccount(t *testing.T) {
	w := New()
	acc, err := w.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !w.Exists(acc) {
		t.Fatal("expected generated account to exist in the wallet")
	}
	if len(w.Accounts()) != 1 {
		t.Fatalf("Accounts() len = %d, want 1", len(w.Accounts()))
	}
}

func TestImportAddsExistingKeyPair(t *testing.T) {
	kp, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	w := New()
	w.Import(kp)
	if !w.Exists(kp.Public) {
		t.Fatal("expected imported key pair's account to exist")
	}
}

func TestSignSignsWithMatchingAccount(t *testing.T) {
	w := New()
	acc, err := w.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	blk := &block.Block{
		Type: block.State, Account: acc, Previous: types.Hash{},
		Representative: acc, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	if err := w.Sign(blk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !types.Verify(acc, blk.Hash(), blk.Signature) {
		t.Fatal("expected signed block to verify")
	}
}

func TestSignRejectsUnknownAccount(t *testing.T) {
	w := New()
	other, _ := types.GenerateKeyPair()
	blk := &block.Block{
		Type: block.State, Account: other.Public, Previous: types.Hash{},
		Representative: other.Public, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	if err := w.Sign(blk); err == nil {
		t.Fatal("expected sign to fail for an account the wallet has no key for")
	}
}
