package ledger

import (
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Rollback reverses hash, which must currently be the head of its account's
// chain (§4.2 Rollback). Cemented blocks (at or below the account's
// confirmation height) cannot be rolled back.
func (l *Ledger) Rollback(tx store.WriteTxn, hash types.Hash) error {
	stored, err := l.GetBlock(tx, hash)
	if err != nil {
		return fmt.Errorf("ledger: rollback: %w", ErrBlockNotFound)
	}
	account := stored.Sideband.Account

	current, err := l.GetAccountInfo(tx, account)
	if err != nil {
		return fmt.Errorf("ledger: rollback: account info: %w", err)
	}
	if current.Head != hash {
		return fmt.Errorf("ledger: rollback: %s is not the chain head of %s", hash, account)
	}

	chi, err := l.GetConfirmationHeight(tx, account)
	if err != nil {
		return fmt.Errorf("ledger: rollback: confirmation height: %w", err)
	}
	if stored.Sideband.Height <= chi.Height {
		return ErrBelowConfirmationHeight
	}

	// Undo this block's contribution to representative weight.
	if !current.Representative.IsZero() {
		if err := l.subWeight(tx, current.Representative, current.Balance); err != nil {
			return fmt.Errorf("ledger: rollback: sub weight: %w", err)
		}
	}

	switch {
	case stored.Sideband.Details.IsSend:
		if err := l.rollbackSend(tx, stored); err != nil {
			return err
		}
	case stored.Sideband.Details.IsReceive:
		if err := l.rollbackReceive(tx, stored); err != nil {
			return err
		}
	}
	// Change and epoch blocks need no extra undo beyond account-info/weight
	// restoration, performed below for every variant.

	var predecessor *block.StoredBlock
	if !stored.Block.IsOpen() {
		predecessor, err = l.GetBlock(tx, stored.Block.Previous)
		if err != nil {
			return fmt.Errorf("ledger: rollback: predecessor: %w", err)
		}
		predecessor.Sideband.Successor = types.Hash{}
		if err := l.putBlock(tx, stored.Block.Previous, predecessor); err != nil {
			return fmt.Errorf("ledger: rollback: clear successor: %w", err)
		}
	}

	if predecessor != nil {
		restored := AccountInfo{
			Head:           stored.Block.Previous,
			Open:           current.Open,
			Representative: predecessor.Sideband.Representative,
			Balance:        predecessor.Sideband.Balance,
			Modified:       predecessor.Sideband.Timestamp,
			BlockCount:     predecessor.Sideband.Height,
			Epoch:          predecessor.Sideband.Details.Epoch,
		}
		if err := l.putAccountInfo(tx, account, restored); err != nil {
			return fmt.Errorf("ledger: rollback: restore account info: %w", err)
		}
		if !restored.Representative.IsZero() {
			if err := l.addWeight(tx, restored.Representative, restored.Balance); err != nil {
				return fmt.Errorf("ledger: rollback: restore weight: %w", err)
			}
		}
	} else {
		if err := l.deleteAccountInfo(tx, account); err != nil {
			return fmt.Errorf("ledger: rollback: delete account info: %w", err)
		}
	}

	if err := l.deleteBlock(tx, hash); err != nil {
		return fmt.Errorf("ledger: rollback: delete block: %w", err)
	}
	if stored.Block.Type.IsLegacy() {
		if err := tx.Delete(store.TableFrontiers, hash[:]); err != nil {
			return fmt.Errorf("ledger: rollback: delete frontier: %w", err)
		}
	}
	return nil
}

// rollbackSend undoes a send block: if the pending it created was never
// consumed, the pending entry is simply deleted; otherwise the receive that
// consumed it (and anything stacked above it on the destination's chain) is
// recursively rolled back first, which reinstates the pending entry, and
// that entry is then deleted since the send itself is disappearing.
func (l *Ledger) rollbackSend(tx store.WriteTxn, stored *block.StoredBlock) error {
	hash := stored.Block.Hash()
	var dest types.Account
	if stored.Block.Type == block.LegacySend {
		dest, _ = stored.Block.DestinationField()
	} else {
		link, _ := stored.Block.LinkField()
		dest = types.Account(link)
	}

	pk := PendingKey{Account: dest, Send: hash}
	if _, err := l.GetPending(tx, pk); err == nil {
		return l.deletePending(tx, pk)
	}

	for {
		info, err := l.GetAccountInfo(tx, dest)
		if err != nil {
			return fmt.Errorf("ledger: rollback: destination %s has no chain to unwind for send %s", dest, hash)
		}
		head := info.Head
		headStored, err := l.GetBlock(tx, head)
		if err != nil {
			return err
		}
		matches := headStored.Sideband.Details.IsReceive && consumesSend(headStored.Block, hash)
		if err := l.Rollback(tx, head); err != nil {
			return err
		}
		if matches {
			break
		}
	}
	return l.deletePending(tx, pk)
}

func consumesSend(blk *block.Block, sendHash types.Hash) bool {
	if src, ok := blk.SourceField(); ok {
		return src == sendHash
	}
	if link, ok := blk.LinkField(); ok {
		return link == sendHash
	}
	return false
}

// rollbackReceive reinstates the pending entry a receive/open consumed.
func (l *Ledger) rollbackReceive(tx store.WriteTxn, stored *block.StoredBlock) error {
	var sendHash types.Hash
	if src, ok := stored.Block.SourceField(); ok {
		sendHash = src
	} else if link, ok := stored.Block.LinkField(); ok {
		sendHash = link
	} else {
		return fmt.Errorf("ledger: rollback: receive block has no source")
	}

	sendStored, err := l.GetBlock(tx, sendHash)
	if err != nil {
		return fmt.Errorf("ledger: rollback: source send %s: %w", sendHash, err)
	}

	prevBalance := types.ZeroAmount
	if !stored.Block.IsOpen() {
		predecessor, err := l.GetBlock(tx, stored.Block.Previous)
		if err != nil {
			return err
		}
		prevBalance = predecessor.Sideband.Balance
	}
	amount, underflow := stored.Sideband.Balance.Sub(prevBalance)
	if underflow {
		return fmt.Errorf("ledger: rollback: negative receive amount for %s", stored.Block.Hash())
	}

	pk := PendingKey{Account: stored.Sideband.Account, Send: sendHash}
	info := PendingInfo{Source: sendStored.Sideband.Account, Amount: amount, Epoch: stored.Sideband.SourceEpoch}
	return l.putPending(tx, pk, info)
}
