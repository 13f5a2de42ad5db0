// Package wallet provides an in-memory ed25519 keystore sufficient to sign
// outgoing blocks for local tooling and tests (§4.15). Seed-phrase
// derivation, on-disk encryption, and passphrase-based key stretching are
// explicit non-goals: keys are generated or imported raw and held for the
// process lifetime only.
package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

// ErrUnknownAccount is returned when an operation names an account the
// wallet holds no key for.
var ErrUnknownAccount = errors.New("wallet: unknown account")

// Wallet holds zero or more ed25519 key pairs, indexed by account, and
// signs blocks on request (generalising the teacher's single-key
// Wallet to the Nano model of one wallet holding many accounts).
type Wallet struct {
	mu   sync.RWMutex
	keys map[types.Account]*types.KeyPair
}

// New creates an empty Wallet.
func New() *Wallet {
	return &Wallet{keys: make(map[types.Account]*types.KeyPair)}
}

// Generate creates a fresh key pair, stores it, and returns its account.
func (w *Wallet) Generate() (types.Account, error) {
	kp, err := types.GenerateKeyPair()
	if err != nil {
		return types.Account{}, fmt.Errorf("wallet: generate: %w", err)
	}
	w.Import(kp)
	return kp.Public, nil
}

// Import adds an existing key pair to the wallet, keyed by its account.
func (w *Wallet) Import(kp *types.KeyPair) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[kp.Public] = kp
}

// Exists reports whether the wallet holds a key for account.
func (w *Wallet) Exists(account types.Account) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.keys[account]
	return ok
}

// Accounts returns every account the wallet currently holds a key for.
func (w *Wallet) Accounts() []types.Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]types.Account, 0, len(w.keys))
	for acc := range w.keys {
		out = append(out, acc)
	}
	return out
}

// Sign signs blk with the held key for blk's account field, erroring if the
// wallet holds no such key.
func (w *Wallet) Sign(blk *block.Block) error {
	account, ok := blk.AccountField()
	if !ok {
		return fmt.Errorf("wallet: sign: block has no account field")
	}
	w.mu.RLock()
	kp, ok := w.keys[account]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("wallet: sign %s: %w", account, ErrUnknownAccount)
	}
	blk.Sign(kp)
	return nil
}
