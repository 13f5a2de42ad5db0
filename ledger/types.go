// Package ledger implements the pure ledger functions, the block validator,
// and rollback over the transactional store: the functional heart of the
// node (§4.2 of the spec).
package ledger

import (
	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

// AccountInfo is the per-account chain head record (§3: "Account info").
type AccountInfo struct {
	Head           types.Hash
	Open           types.Hash
	Representative types.Account
	Balance        types.Amount
	Modified       uint64 // unix seconds
	BlockCount     uint64
	Epoch          block.Epoch
}

// PendingKey identifies a pending receivable by (destination account, send hash).
type PendingKey struct {
	Account types.Account
	Send    types.Hash
}

// PendingInfo is the value stored for a PendingKey (§3: "Pending info").
type PendingInfo struct {
	Source types.Account
	Amount types.Amount
	Epoch  block.Epoch
}

// ConfirmationHeightInfo tracks how far an account's chain is cemented.
type ConfirmationHeightInfo struct {
	Height   uint64
	Frontier types.Hash
}
