package ledger

import "errors"

// Rejection discriminants (§4.2). These are sentinel errors compared with
// errors.Is at every component boundary, following the teacher's
// fmt.Errorf("%w", err)-wrapping convention throughout.
var (
	ErrOld                   = errors.New("ledger: old")
	ErrGapPrevious           = errors.New("ledger: gap previous")
	ErrGapSource             = errors.New("ledger: gap source")
	ErrGapEpochOpen          = errors.New("ledger: gap epoch open")
	ErrBadSignature          = errors.New("ledger: bad signature")
	ErrNegativeSpend         = errors.New("ledger: negative spend")
	ErrFork                  = errors.New("ledger: fork")
	ErrUnreceivable          = errors.New("ledger: unreceivable")
	ErrBlockPosition         = errors.New("ledger: block position")
	ErrInsufficientWork      = errors.New("ledger: insufficient work")
	ErrOpenedBurnAccount     = errors.New("ledger: opened burn account")
	ErrBalanceMismatch       = errors.New("ledger: balance mismatch")
	ErrRepresentativeMismatch = errors.New("ledger: representative mismatch")
	ErrInsufficientPriority  = errors.New("ledger: insufficient priority")

	// Rollback-specific errors (§4.2 Rollback, §7).
	ErrBelowConfirmationHeight = errors.New("ledger: cannot roll back a cemented block")
	ErrBlockNotFound           = errors.New("ledger: block not found")
)
