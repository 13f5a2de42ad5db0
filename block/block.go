// Package block defines the five wire block variants, their hashing and
// signing, and the sideband metadata attached to a block once stored.
package block

import (
	"fmt"

	"github.com/nanolattice/nanod/types"
)

// Type distinguishes the five block variants by a one-byte wire tag.
type Type byte

const (
	// Invalid is the zero value; never a valid stored block.
	Invalid Type = iota
	LegacySend
	LegacyReceive
	LegacyOpen
	LegacyChange
	State
)

func (t Type) String() string {
	switch t {
	case LegacySend:
		return "send"
	case LegacyReceive:
		return "receive"
	case LegacyOpen:
		return "open"
	case LegacyChange:
		return "change"
	case State:
		return "state"
	default:
		return "invalid"
	}
}

// IsLegacy reports whether t is one of the four legacy variants.
func (t Type) IsLegacy() bool {
	return t == LegacySend || t == LegacyReceive || t == LegacyOpen || t == LegacyChange
}

// Block is a tagged sum over the five variants, realised as one flat struct:
// every variant sets only the fields it hashes (see the *Field accessors
// below), the rest remain zero. This mirrors the "dynamic dispatch over
// block variants" design note: accessors return (value, ok) since not every
// field applies to every variant.
type Block struct {
	Type Type

	// Legacy Send
	Previous    types.Hash
	Destination types.Account
	Balance     types.Amount // explicit balance (Send, State)

	// Legacy Receive
	Source types.Hash // also used by Legacy Open

	// Legacy Open
	Account        types.Account // also used by State
	Representative types.Account // Open, Change, State

	// State
	Link types.Hash // destination account (send) or paired send hash (receive), or epoch marker, or zero (change)

	// Not hashed
	Signature types.Signature
	Work      types.Work
}

// Hash computes the blake2b-256 digest of the variant's hashed fields, in
// the fixed field order for that variant.
func (b *Block) Hash() types.Hash {
	switch b.Type {
	case LegacySend:
		return types.BlockHash(b.Previous[:], b.Destination[:], b.Balance.Bytes())
	case LegacyReceive:
		return types.BlockHash(b.Previous[:], b.Source[:])
	case LegacyOpen:
		return types.BlockHash(b.Source[:], b.Representative[:], b.Account[:])
	case LegacyChange:
		return types.BlockHash(b.Previous[:], b.Representative[:])
	case State:
		return types.BlockHash(
			b.Account[:], b.Previous[:], b.Representative[:],
			b.Balance.Bytes(), b.Link[:],
		)
	default:
		panic(fmt.Sprintf("block: Hash called on invalid block type %d", b.Type))
	}
}

// Sign signs b.Hash() and stores the signature on the block.
func (b *Block) Sign(kp *types.KeyPair) {
	b.Signature = kp.Sign(b.Hash())
}

// PreviousField returns the block's previous-hash field when it has one
// (every variant except Legacy Open, which has no predecessor).
func (b *Block) PreviousField() (types.Hash, bool) {
	if b.Type == LegacyOpen {
		return types.Hash{}, false
	}
	return b.Previous, true
}

// IsOpen reports whether b is the first block on its account's chain: every
// Legacy Open, and a State block whose Previous is the zero hash.
func (b *Block) IsOpen() bool {
	return b.Type == LegacyOpen || (b.Type == State && b.Previous.IsZero())
}

// Root returns the election root: the account for an open block, the
// previous hash otherwise.
func (b *Block) Root() types.Hash {
	if b.IsOpen() {
		return types.Hash(b.Account)
	}
	return b.Previous
}

// BalanceField returns the block's explicit balance when it carries one
// (Legacy Send and State both declare balance explicitly; the other legacy
// variants inherit balance from chain state and carry none of their own).
func (b *Block) BalanceField() (types.Amount, bool) {
	switch b.Type {
	case LegacySend, State:
		return b.Balance, true
	default:
		return types.ZeroAmount, false
	}
}

// LinkField returns the state block's link field.
func (b *Block) LinkField() (types.Hash, bool) {
	if b.Type != State {
		return types.Hash{}, false
	}
	return b.Link, true
}

// SourceField returns the hash of the paired send a receive/open consumes.
func (b *Block) SourceField() (types.Hash, bool) {
	switch b.Type {
	case LegacyReceive, LegacyOpen:
		return b.Source, true
	default:
		return types.Hash{}, false
	}
}

// RepresentativeField returns the block's representative when it sets one.
func (b *Block) RepresentativeField() (types.Account, bool) {
	switch b.Type {
	case LegacyOpen, LegacyChange, State:
		return b.Representative, true
	default:
		return types.Account{}, false
	}
}

// DestinationField returns the explicit destination account a Legacy Send
// carries. State sends carry their destination in Link instead (see the
// State case of Validate in ledger/validator.go).
func (b *Block) DestinationField() (types.Account, bool) {
	if b.Type != LegacySend {
		return types.Account{}, false
	}
	return b.Destination, true
}

// AccountField returns the account a block declares for itself: explicit
// for State and Legacy Open, absent for the other legacy variants (whose
// account is resolved from the predecessor's sideband at validation time).
func (b *Block) AccountField() (types.Account, bool) {
	switch b.Type {
	case State, LegacyOpen:
		return b.Account, true
	default:
		return types.Account{}, false
	}
}
