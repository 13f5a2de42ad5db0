package ledger

import (
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/workpool"
)

// Instructions is what the validator produces on Accept (§4.2).
type Instructions struct {
	Account       types.Account
	AccountInfo   AccountInfo
	Sideband      block.Sideband
	DeletePending *PendingKey
	InsertPending *pendingInsert
	IsEpochBlock  bool
}

type pendingInsert struct {
	Key  PendingKey
	Info PendingInfo
}

// Validate runs the ordered check sequence of §4.2 against blk. now is the
// wall-clock in unix seconds (passed in, not read internally, so tests are
// deterministic).
func (l *Ledger) Validate(tx store.ReadTxn, blk *block.Block, policy workpool.Policy, now uint64) (*Instructions, error) {
	hash := blk.Hash()

	// 1. Existence
	if l.BlockExists(tx, hash) {
		return nil, ErrOld
	}

	// 2. Predecessor
	var predecessor *block.StoredBlock
	if !blk.IsOpen() {
		var err error
		predecessor, err = l.GetBlock(tx, blk.Previous)
		if err != nil {
			return nil, ErrGapPrevious
		}
		if blk.Type.IsLegacy() && predecessor.Block.Type == block.State {
			return nil, ErrBlockPosition
		}
	}

	// 3. Account resolution
	var account types.Account
	switch blk.Type {
	case block.State, block.LegacyOpen:
		account, _ = blk.AccountField()
	default:
		account = predecessor.Sideband.Account
	}
	if account.IsZero() {
		return nil, ErrOpenedBurnAccount
	}

	// Look up any existing account info (absent for the first block).
	priorInfo, priorErr := l.GetAccountInfo(tx, account)
	hasPrior := priorErr == nil

	// 4. Signature
	signer := account
	isEpochBlock := l.isEpochBlockCandidate(blk, hasPrior, priorInfo)
	if isEpochBlock {
		signer = l.EpochSigner
	}
	if !types.Verify(signer, hash, blk.Signature) {
		return nil, ErrBadSignature
	}

	// 5. Work
	root := blk.Root()
	details := workpool.Details{}
	// classify is filled in below once we know send/receive/epoch; for the
	// work check we need a first pass classification, refined at step 7/9.
	prelimSend, prelimReceive, prelimEpoch := classifyPreliminary(blk, hasPrior, priorInfo, isEpochBlock)
	details.IsSend = prelimSend
	details.IsEpochV1 = prelimEpoch == block.Epoch1
	details.IsEpochV2 = prelimEpoch == block.Epoch2
	_ = prelimReceive
	if !workpool.Validate(policy, details, root, blk.Work) {
		return nil, ErrInsufficientWork
	}

	// 6. Chain continuity
	if hasPrior {
		if blk.IsOpen() {
			return nil, ErrFork
		}
		if priorInfo.Head != blk.Previous {
			return nil, ErrFork
		}
	} else if !blk.IsOpen() {
		// non-open block but no prior account info: only legal if this is
		// an epoch-open (checked in step 9); otherwise it is effectively a
		// gap, already caught by GapPrevious above since Previous would not
		// resolve to this account's own (nonexistent) chain in practice.
	}

	var sourceEpoch block.Epoch = block.EpochUnspecified
	var deletePending *PendingKey
	var insertPending *pendingInsert
	var postBalance types.Amount
	isSend := false
	isReceive := false

	switch blk.Type {
	case block.LegacyReceive, block.LegacyOpen:
		// 7. Source/link resolution (legacy)
		source, _ := blk.SourceField()
		if !l.BlockExists(tx, source) {
			return nil, ErrGapSource
		}
		pk := PendingKey{Account: account, Send: source}
		pending, err := l.GetPending(tx, pk)
		if err != nil {
			return nil, ErrUnreceivable
		}
		prevBalance := types.ZeroAmount
		if hasPrior {
			prevBalance = priorInfo.Balance
		}
		sum, overflow := prevBalance.Add(pending.Amount)
		if overflow {
			return nil, ErrBalanceMismatch
		}
		postBalance = sum
		sourceEpoch = pending.Epoch
		isReceive = true
		deletePending = &pk

	case block.LegacySend:
		prevBalance := priorInfo.Balance
		if !blk.Balance.LessThan(prevBalance) {
			return nil, ErrNegativeSpend
		}
		postBalance = blk.Balance
		isSend = true
		dest, _ := blk.DestinationField()
		amount, _ := prevBalance.Sub(blk.Balance)
		insertPending = &pendingInsert{
			Key:  PendingKey{Account: dest, Send: hash},
			Info: PendingInfo{Source: account, Amount: amount, Epoch: accountEpoch(hasPrior, priorInfo)},
		}

	case block.LegacyChange:
		postBalance = priorInfo.Balance

	case block.State:
		prevBalance := types.ZeroAmount
		if hasPrior {
			prevBalance = priorInfo.Balance
		}
		switch {
		case blk.Balance.LessThan(prevBalance):
			// 7/8. send
			isSend = true
			postBalance = blk.Balance
			dest, _ := blk.LinkField()
			amount, _ := prevBalance.Sub(blk.Balance)
			insertPending = &pendingInsert{
				Key:  PendingKey{Account: types.Account(dest), Send: hash},
				Info: PendingInfo{Source: account, Amount: amount, Epoch: accountEpoch(hasPrior, priorInfo)},
			}
		case blk.Balance.GreaterThan(prevBalance):
			// receive
			link, _ := blk.LinkField()
			if !l.BlockExists(tx, link) {
				return nil, ErrGapSource
			}
			pk := PendingKey{Account: account, Send: link}
			pending, err := l.GetPending(tx, pk)
			if err != nil {
				return nil, ErrUnreceivable
			}
			received, _ := blk.Balance.Sub(prevBalance)
			if pending.Amount.Cmp(received) != 0 {
				return nil, ErrBalanceMismatch
			}
			isReceive = true
			postBalance = blk.Balance
			sourceEpoch = pending.Epoch
			deletePending = &pk
		default:
			// change or epoch: balance unchanged
			postBalance = blk.Balance
			link, _ := blk.LinkField()
			if epoch, ok := block.EpochFromLink(link); ok {
				// 9. Epoch block rules
				curEpoch := accountEpoch(hasPrior, priorInfo)
				if epoch != curEpoch.Next() {
					return nil, ErrInsufficientPriority
				}
				rep, _ := blk.RepresentativeField()
				if hasPrior && rep != priorInfo.Representative {
					return nil, ErrRepresentativeMismatch
				}
				if !hasPrior {
					hasPending, err := l.hasAnyPending(tx, account)
					if err != nil {
						return nil, err
					}
					if !hasPending {
						return nil, ErrGapEpochOpen
					}
				}
				isEpochBlock = true
			}
		}
	}

	// 10. Epoch monotonicity
	newEpoch := accountEpoch(hasPrior, priorInfo)
	if isEpochBlock {
		newEpoch = newEpoch.Next()
	}
	if sourceEpoch > newEpoch {
		newEpoch = sourceEpoch
	}

	openHash := hash
	height := uint64(1)
	if hasPrior {
		openHash = priorInfo.Open
		height = priorInfo.BlockCount + 1
	}

	rep := priorInfo.Representative
	if r, ok := blk.RepresentativeField(); ok {
		rep = r
	}

	sideband := block.Sideband{
		Account:   account,
		Successor: types.Hash{},
		Balance:   postBalance,
		Height:    height,
		Timestamp: now,
		Details: block.Details{
			Epoch:     newEpoch,
			IsSend:    isSend,
			IsReceive: isReceive,
			IsEpoch:   isEpochBlock,
		},
		SourceEpoch:    sourceEpoch,
		Representative: rep,
	}

	newInfo := AccountInfo{
		Head:           hash,
		Open:           openHash,
		Representative: rep,
		Balance:        postBalance,
		Modified:       now,
		BlockCount:     height,
		Epoch:          newEpoch,
	}

	return &Instructions{
		Account:       account,
		AccountInfo:   newInfo,
		Sideband:      sideband,
		DeletePending: deletePending,
		InsertPending: insertPending,
		IsEpochBlock:  isEpochBlock,
	}, nil
}

// isEpochBlockCandidate reports whether blk might be an epoch block, purely
// from its shape (balance unchanged, link matches a known epoch marker),
// used only to decide which key verifies the signature (step 4 runs before
// full classification).
func (l *Ledger) isEpochBlockCandidate(blk *block.Block, hasPrior bool, prior AccountInfo) bool {
	if blk.Type != block.State {
		return false
	}
	link, ok := blk.LinkField()
	if !ok {
		return false
	}
	if _, ok := block.EpochFromLink(link); !ok {
		return false
	}
	prevBalance := types.ZeroAmount
	if hasPrior {
		prevBalance = prior.Balance
	}
	return blk.Balance.Cmp(prevBalance) == 0
}

func classifyPreliminary(blk *block.Block, hasPrior bool, prior AccountInfo, isEpoch bool) (send, receive bool, epoch block.Epoch) {
	switch blk.Type {
	case block.LegacySend:
		return true, false, block.EpochUnspecified
	case block.LegacyReceive, block.LegacyOpen:
		return false, true, block.EpochUnspecified
	case block.State:
		prevBalance := types.ZeroAmount
		if hasPrior {
			prevBalance = prior.Balance
		}
		switch {
		case blk.Balance.LessThan(prevBalance):
			return true, false, block.EpochUnspecified
		case blk.Balance.GreaterThan(prevBalance):
			return false, true, block.EpochUnspecified
		default:
			if isEpoch {
				link, _ := blk.LinkField()
				e, _ := block.EpochFromLink(link)
				return false, false, e
			}
			return false, false, block.EpochUnspecified
		}
	}
	return false, false, block.EpochUnspecified
}

func accountEpoch(hasPrior bool, info AccountInfo) block.Epoch {
	if !hasPrior {
		return block.Epoch0
	}
	return info.Epoch
}

func (l *Ledger) hasAnyPending(tx store.ReadTxn, acc types.Account) (bool, error) {
	found := false
	err := tx.Iterate(store.TablePending, acc[:], func(key, value []byte) bool {
		found = true
		return false
	})
	return found, err
}

// Now returns the current wall-clock time in unix seconds, a thin wrapper so
// callers outside tests have one canonical source.
func Now() uint64 {
	return uint64(time.Now().Unix())
}
