package ledger

import (
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Process applies instr (produced by Validate) to tx: writes the block and
// its sideband, links the predecessor's successor, updates account info,
// representative weights, and pending entries.
func (l *Ledger) Process(tx store.WriteTxn, blk *block.Block, instr *Instructions) error {
	hash := blk.Hash()

	prior, hasPrior := AccountInfo{}, false
	if pi, err := l.GetAccountInfo(tx, instr.Account); err == nil {
		prior, hasPrior = pi, true
	} else if err != store.ErrNotFound {
		return fmt.Errorf("ledger: process: read prior account info: %w", err)
	}

	if hasPrior && !prior.Representative.IsZero() {
		if err := l.subWeight(tx, prior.Representative, prior.Balance); err != nil {
			return fmt.Errorf("ledger: process: sub weight: %w", err)
		}
	}
	if !instr.AccountInfo.Representative.IsZero() {
		if err := l.addWeight(tx, instr.AccountInfo.Representative, instr.AccountInfo.Balance); err != nil {
			return fmt.Errorf("ledger: process: add weight: %w", err)
		}
	}

	if err := l.putBlock(tx, hash, &block.StoredBlock{Block: blk, Sideband: instr.Sideband}); err != nil {
		return fmt.Errorf("ledger: process: put block: %w", err)
	}

	if !blk.IsOpen() {
		if err := l.linkSuccessor(tx, blk.Previous, hash); err != nil {
			return fmt.Errorf("ledger: process: link successor: %w", err)
		}
	}

	if err := l.putAccountInfo(tx, instr.Account, instr.AccountInfo); err != nil {
		return fmt.Errorf("ledger: process: put account info: %w", err)
	}

	if instr.InsertPending != nil {
		if err := l.putPending(tx, instr.InsertPending.Key, instr.InsertPending.Info); err != nil {
			return fmt.Errorf("ledger: process: insert pending: %w", err)
		}
	}
	if instr.DeletePending != nil {
		if err := l.deletePending(tx, *instr.DeletePending); err != nil {
			return fmt.Errorf("ledger: process: delete pending: %w", err)
		}
	}

	if blk.Type.IsLegacy() {
		if err := tx.Put(store.TableFrontiers, hash[:], instr.Account[:]); err != nil {
			return fmt.Errorf("ledger: process: put frontier: %w", err)
		}
	}

	return nil
}

// linkSuccessor rewrites predecessor's sideband.successor to point at
// newHash, in place (§4.1: "inserting a block also updates its
// predecessor's sideband-successor field").
func (l *Ledger) linkSuccessor(tx store.WriteTxn, predecessor, newHash types.Hash) error {
	sb, err := l.GetBlock(tx, predecessor)
	if err != nil {
		return err
	}
	sb.Sideband.Successor = newHash
	return l.putBlock(tx, predecessor, sb)
}
