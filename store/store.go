// Package store provides the transactional, multi-reader/single-writer
// key/value environment backing the ledger: one goleveldb handle, split
// into fixed tables by a one-byte key prefix (the same prefix-per-bucket
// idiom the teacher's storage/statedb.go uses over a single flat store).
package store

import "errors"

// Table is a one-byte prefix identifying a logical table within the single
// underlying goleveldb environment.
type Table byte

const (
	TableAccounts           Table = 'a'
	TableBlocks              Table = 'b'
	TablePending             Table = 'p'
	TableConfirmationHeight  Table = 'c'
	TableFrontiers           Table = 'f'
	TablePruned              Table = 'r'
	TableOnlineWeight        Table = 'o'
	TablePeers               Table = 'e'
	TableRepWeights          Table = 'w'
	TableVersion             Table = 'v'
	TableFinalVotes          Table = 'n'
)

// ErrNotFound is returned by Get when the key does not exist in the table.
var ErrNotFound = errors.New("store: not found")

// STOREVersionMinimum and STOREVersionCurrent bound the schema versions this
// implementation knows how to open (§6 of the spec).
const (
	STOREVersionMinimum = 21
	STOREVersionCurrent = 22
)

// key builds the raw goleveldb key for (table, domainKey).
func key(t Table, domainKey []byte) []byte {
	out := make([]byte, 1+len(domainKey))
	out[0] = byte(t)
	copy(out[1:], domainKey)
	return out
}

// ReadTxn is a read-only, point-in-time consistent view over the store.
type ReadTxn interface {
	Get(t Table, key []byte) ([]byte, error)
	// Iterate calls fn for every key in table t with the given prefix, in
	// lexicographic key order, until fn returns false or the table is
	// exhausted.
	Iterate(t Table, prefix []byte, fn func(key, value []byte) bool) error
	// Discard releases the underlying snapshot. Safe to call multiple times.
	Discard()
}

// WriteTxn is the single exclusive writer. Writes are buffered and only
// become visible to new ReadTxns (and to this WriteTxn's own Get, which
// reads through the buffer) on Commit or Refresh.
type WriteTxn interface {
	ReadTxn
	Put(t Table, key, value []byte) error
	Delete(t Table, key []byte) error
	// Refresh commits the buffered writes and immediately opens a fresh
	// buffer, without releasing the exclusive write token. Used to bound
	// how long a single write transaction holds back reader snapshots
	// during a long batch (§4.1, §5).
	Refresh() error
	// Commit flushes buffered writes and releases the write token.
	Commit() error
	// Abort discards buffered writes and releases the write token.
	Abort() error
}

// Store is the transactional environment. Implementations must guarantee at
// most one live WriteTxn at a time and unlimited concurrent ReadTxns.
type Store interface {
	BeginRead() (ReadTxn, error)
	BeginWrite() (WriteTxn, error)
	Close() error
}
