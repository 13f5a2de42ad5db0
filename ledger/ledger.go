package ledger

import (
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Ledger wraps a store.ReadTxn/WriteTxn with the pure accessor functions
// described in §4.2: balance, amount, successor, weight, frontier.
type Ledger struct {
	EpochSigner types.Account
}

// New creates a Ledger configured with the network's epoch signer account.
func New(epochSigner types.Account) *Ledger {
	return &Ledger{EpochSigner: epochSigner}
}

// GetAccountInfo returns the account's chain head record, or store.ErrNotFound
// (unwrapped) if the account has never posted a block.
func (l *Ledger) GetAccountInfo(tx store.ReadTxn, acc types.Account) (AccountInfo, error) {
	raw, err := tx.Get(store.TableAccounts, acc[:])
	if err != nil {
		return AccountInfo{}, err
	}
	return unmarshalAccountInfo(raw)
}

func (l *Ledger) putAccountInfo(tx store.WriteTxn, acc types.Account, ai AccountInfo) error {
	return tx.Put(store.TableAccounts, acc[:], ai.marshal())
}

func (l *Ledger) deleteAccountInfo(tx store.WriteTxn, acc types.Account) error {
	return tx.Delete(store.TableAccounts, acc[:])
}

// GetBlock fetches a stored block and its sideband by hash.
func (l *Ledger) GetBlock(tx store.ReadTxn, hash types.Hash) (*block.StoredBlock, error) {
	raw, err := tx.Get(store.TableBlocks, hash[:])
	if err != nil {
		return nil, err
	}
	return decodeStoredBlock(raw)
}

func encodeStoredBlock(sb *block.StoredBlock) []byte {
	blk := sb.Block.Marshal()
	side := sb.Sideband.Marshal()
	out := make([]byte, 4+len(blk)+len(side))
	putUint32(out[0:4], uint32(len(blk)))
	copy(out[4:], blk)
	copy(out[4+len(blk):], side)
	return out
}

func decodeStoredBlock(data []byte) (*block.StoredBlock, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("ledger: truncated stored block")
	}
	blkLen := int(getUint32(data[0:4]))
	if len(data) < 4+blkLen {
		return nil, fmt.Errorf("ledger: truncated stored block body")
	}
	blk, err := block.Unmarshal(data[4 : 4+blkLen])
	if err != nil {
		return nil, err
	}
	side, err := block.UnmarshalSideband(data[4+blkLen:])
	if err != nil {
		return nil, err
	}
	return &block.StoredBlock{Block: blk, Sideband: side}, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (l *Ledger) putBlock(tx store.WriteTxn, hash types.Hash, sb *block.StoredBlock) error {
	return tx.Put(store.TableBlocks, hash[:], encodeStoredBlock(sb))
}

func (l *Ledger) deleteBlock(tx store.WriteTxn, hash types.Hash) error {
	return tx.Delete(store.TableBlocks, hash[:])
}

// BlockExists reports whether hash is stored or pruned.
func (l *Ledger) BlockExists(tx store.ReadTxn, hash types.Hash) bool {
	if _, err := tx.Get(store.TableBlocks, hash[:]); err == nil {
		return true
	}
	if _, err := tx.Get(store.TablePruned, hash[:]); err == nil {
		return true
	}
	return false
}

// Balance returns the balance of the block at hash (its sideband.balance).
func (l *Ledger) Balance(tx store.ReadTxn, hash types.Hash) (types.Amount, error) {
	sb, err := l.GetBlock(tx, hash)
	if err != nil {
		return types.ZeroAmount, err
	}
	return sb.Sideband.Balance, nil
}

// AccountBalance returns the current balance of an account (its head block's
// sideband balance); if the account has no chain it returns zero together
// with store.ErrNotFound.
func (l *Ledger) AccountBalance(tx store.ReadTxn, acc types.Account) (types.Amount, error) {
	ai, err := l.GetAccountInfo(tx, acc)
	if err != nil {
		return types.ZeroAmount, err
	}
	return ai.Balance, nil
}

// Frontier returns the account's head hash.
func (l *Ledger) Frontier(tx store.ReadTxn, acc types.Account) (types.Hash, error) {
	ai, err := l.GetAccountInfo(tx, acc)
	if err != nil {
		return types.Hash{}, err
	}
	return ai.Head, nil
}

// Successor returns the hash of the block following hash on its chain, or
// the zero hash if hash is the chain head.
func (l *Ledger) Successor(tx store.ReadTxn, hash types.Hash) (types.Hash, error) {
	sb, err := l.GetBlock(tx, hash)
	if err != nil {
		return types.Hash{}, err
	}
	return sb.Sideband.Successor, nil
}

// Weight returns the representative's current delegated weight.
func (l *Ledger) Weight(tx store.ReadTxn, rep types.Account) (types.Amount, error) {
	raw, err := tx.Get(store.TableRepWeights, rep[:])
	if err == store.ErrNotFound {
		return types.ZeroAmount, nil
	}
	if err != nil {
		return types.ZeroAmount, err
	}
	return types.AmountFromBytes(raw)
}

// addWeight adds amount to rep's weight (subWeight below removes it); used
// by block insertion and rollback.
func (l *Ledger) addWeight(tx store.WriteTxn, rep types.Account, amount types.Amount) error {
	if rep.IsZero() {
		return nil
	}
	cur, err := l.Weight(tx, rep)
	if err != nil {
		return err
	}
	next, overflow := cur.Add(amount)
	if overflow {
		return fmt.Errorf("ledger: representative weight overflow for %s", rep)
	}
	return tx.Put(store.TableRepWeights, rep[:], next.Bytes())
}

func (l *Ledger) subWeight(tx store.WriteTxn, rep types.Account, amount types.Amount) error {
	if rep.IsZero() {
		return nil
	}
	cur, err := l.Weight(tx, rep)
	if err != nil {
		return err
	}
	next, underflow := cur.Sub(amount)
	if underflow {
		return fmt.Errorf("ledger: representative weight underflow for %s", rep)
	}
	return tx.Put(store.TableRepWeights, rep[:], next.Bytes())
}

// GetPending looks up a pending entry.
func (l *Ledger) GetPending(tx store.ReadTxn, k PendingKey) (PendingInfo, error) {
	raw, err := tx.Get(store.TablePending, pendingKeyBytes(k))
	if err != nil {
		return PendingInfo{}, err
	}
	return unmarshalPendingInfo(raw)
}

func (l *Ledger) putPending(tx store.WriteTxn, k PendingKey, v PendingInfo) error {
	return tx.Put(store.TablePending, pendingKeyBytes(k), v.marshal())
}

func (l *Ledger) deletePending(tx store.WriteTxn, k PendingKey) error {
	return tx.Delete(store.TablePending, pendingKeyBytes(k))
}

// GetConfirmationHeight returns the account's cementing progress.
func (l *Ledger) GetConfirmationHeight(tx store.ReadTxn, acc types.Account) (ConfirmationHeightInfo, error) {
	raw, err := tx.Get(store.TableConfirmationHeight, acc[:])
	if err == store.ErrNotFound {
		return ConfirmationHeightInfo{}, nil
	}
	if err != nil {
		return ConfirmationHeightInfo{}, err
	}
	return unmarshalConfirmationHeightInfo(raw)
}

// PutConfirmationHeight sets the account's cementing progress (called only
// by the Confirming Set, §4.4).
func (l *Ledger) PutConfirmationHeight(tx store.WriteTxn, acc types.Account, info ConfirmationHeightInfo) error {
	return tx.Put(store.TableConfirmationHeight, acc[:], info.marshal())
}
