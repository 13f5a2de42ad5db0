package ledger

import (
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/store"
)

// InitializeGenesis seeds blk as a network's genesis open block: it bypasses
// Validate (a genesis block has no predecessor chain to validate against)
// and writes the block, its sideband, account info, and representative
// weight directly. blk must be a State open block (Previous and Link both
// zero) carrying its full starting balance. Called once, when the store has
// no existing chain for blk's account.
func (l *Ledger) InitializeGenesis(tx store.WriteTxn, blk *block.Block, now uint64) error {
	if !blk.IsOpen() {
		return fmt.Errorf("ledger: genesis block must be an open block")
	}
	account, ok := blk.AccountField()
	if !ok {
		return fmt.Errorf("ledger: genesis block has no account field")
	}
	if l.BlockExists(tx, blk.Hash()) {
		return fmt.Errorf("ledger: genesis block already initialized")
	}
	rep, _ := blk.RepresentativeField()
	balance, _ := blk.BalanceField()

	sb := block.Sideband{
		Account:        account,
		Balance:        balance,
		Height:         1,
		Timestamp:      now,
		Details:        block.Details{Epoch: block.Epoch0},
		Representative: rep,
	}
	if err := l.putBlock(tx, blk.Hash(), &block.StoredBlock{Block: blk, Sideband: sb}); err != nil {
		return fmt.Errorf("ledger: initialize genesis: put block: %w", err)
	}
	info := AccountInfo{
		Head:           blk.Hash(),
		Open:           blk.Hash(),
		Representative: rep,
		Balance:        balance,
		Modified:       now,
		BlockCount:     1,
		Epoch:          block.Epoch0,
	}
	if err := l.putAccountInfo(tx, account, info); err != nil {
		return fmt.Errorf("ledger: initialize genesis: put account info: %w", err)
	}
	if err := l.addWeight(tx, rep, balance); err != nil {
		return fmt.Errorf("ledger: initialize genesis: add weight: %w", err)
	}
	return nil
}
