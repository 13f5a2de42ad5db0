package block

import "github.com/nanolattice/nanod/types"

// Details tags the semantic effect of a stored block, independent of its
// wire Type (a State block can be a send, a receive, an epoch upgrade, or a
// plain change — Details records which).
type Details struct {
	Epoch     Epoch
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

// Sideband is per-block metadata appended at write time. It is authoritative
// for chain traversal and is never part of the block hash.
type Sideband struct {
	Account        types.Account
	Successor      types.Hash // zero until a later block links back to this one
	Balance        types.Amount
	Height         uint64
	Timestamp      uint64 // unix seconds
	Details        Details
	SourceEpoch    Epoch         // epoch of the pending entry this block consumed, if any
	Representative types.Account // the account's effective representative as of this block, cached for rollback
}

// StoredBlock pairs a block with the sideband assigned to it on insertion.
type StoredBlock struct {
	Block    *Block
	Sideband Sideband
}
