package store

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore implements Store on top of a single goleveldb environment,
// generalising the teacher's storage/leveldb.go LevelDB wrapper with
// table-prefixed keys and the ReadTxn/WriteTxn transaction contract of
// §4.1 instead of bare Get/Set/Delete.
type LevelStore struct {
	db *leveldb.DB

	// writeMu is the single exclusive write token described in §5: at most
	// one WriteTxn may be open at a time.
	writeMu sync.Mutex
}

// Open opens (or creates) a LevelStore at path and checks/initialises the
// schema version table.
func Open(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	s := &LevelStore{db: db}
	if err := s.ensureVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var versionKey = []byte("schema")

func (s *LevelStore) ensureVersion() error {
	raw, err := s.db.Get(key(TableVersion, versionKey), nil)
	if err == leveldb.ErrNotFound {
		return s.db.Put(key(TableVersion, versionKey), encodeVersion(STOREVersionCurrent), nil)
	}
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	v := decodeVersion(raw)
	if v < STOREVersionMinimum || v > STOREVersionCurrent {
		return fmt.Errorf("store: schema version %d outside supported range [%d, %d]", v, STOREVersionMinimum, STOREVersionCurrent)
	}
	return upgradeSchema(s, v)
}

// upgradeSchema rewrites an older stored version as current; it runs no data
// migration step. This implementation never itself produces version-21
// data, but must not refuse to open it (§6).
func upgradeSchema(s *LevelStore, from int) error {
	if from == STOREVersionCurrent {
		return nil
	}
	return s.db.Put(key(TableVersion, versionKey), encodeVersion(STOREVersionCurrent), nil)
}

func encodeVersion(v int) []byte { return []byte{byte(v)} }
func decodeVersion(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(b[0])
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) BeginRead() (ReadTxn, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("store: begin read: %w", err)
	}
	return &levelReadTxn{snap: snap}, nil
}

func (s *LevelStore) BeginWrite() (WriteTxn, error) {
	s.writeMu.Lock()
	snap, err := s.db.GetSnapshot()
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("store: begin write: %w", err)
	}
	return &levelWriteTxn{
		db:    s.db,
		mu:    &s.writeMu,
		snap:  snap,
		batch: new(leveldb.Batch),
		dirty: make(map[string][]byte),
	}, nil
}

// --- read transaction ---

type levelReadTxn struct {
	snap *leveldb.Snapshot
}

func (t *levelReadTxn) Get(tbl Table, k []byte) ([]byte, error) {
	v, err := t.snap.Get(key(tbl, k), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return v, nil
}

func (t *levelReadTxn) Iterate(tbl Table, prefix []byte, fn func(key, value []byte) bool) error {
	fullPrefix := key(tbl, prefix)
	it := t.snap.NewIterator(util.BytesPrefix(fullPrefix), nil)
	defer it.Release()
	for it.Next() {
		k := it.Key()[1:] // strip table prefix
		if !fn(append([]byte(nil), k...), append([]byte(nil), it.Value()...)) {
			break
		}
	}
	return it.Error()
}

func (t *levelReadTxn) Discard() {
	t.snap.Release()
}

// --- write transaction ---

// levelWriteTxn buffers writes in a leveldb.Batch (committed on
// Refresh/Commit) while reads see the buffer layered over the most recent
// committed snapshot, so a writer observes its own uncommitted writes.
type levelWriteTxn struct {
	db    *leveldb.DB
	mu    *sync.Mutex
	snap  *leveldb.Snapshot
	batch *leveldb.Batch
	dirty map[string][]byte // nil value means deleted
	done  bool              // true once Commit/Abort/Discard has released the write token
}

func (t *levelWriteTxn) Get(tbl Table, k []byte) ([]byte, error) {
	full := key(tbl, k)
	if v, ok := t.dirty[string(full)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}
	v, err := t.snap.Get(full, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return v, nil
}

func (t *levelWriteTxn) Put(tbl Table, k, v []byte) error {
	full := key(tbl, k)
	t.batch.Put(full, v)
	t.dirty[string(full)] = append([]byte(nil), v...)
	return nil
}

func (t *levelWriteTxn) Delete(tbl Table, k []byte) error {
	full := key(tbl, k)
	t.batch.Delete(full)
	t.dirty[string(full)] = nil
	return nil
}

func (t *levelWriteTxn) Iterate(tbl Table, prefix []byte, fn func(key, value []byte) bool) error {
	fullPrefix := key(tbl, prefix)
	it := t.snap.NewIterator(util.BytesPrefix(fullPrefix), nil)
	defer it.Release()
	seen := make(map[string]bool)
	for it.Next() {
		full := append([]byte(nil), it.Key()...)
		seen[string(full)] = true
		if dv, ok := t.dirty[string(full)]; ok {
			if dv == nil {
				continue
			}
			if !fn(full[1:], dv) {
				return it.Error()
			}
			continue
		}
		if !fn(full[1:], append([]byte(nil), it.Value()...)) {
			return it.Error()
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	// surface dirty keys under this prefix not yet visible in the base snapshot
	for full, v := range t.dirty {
		if v == nil || seen[full] {
			continue
		}
		if len(full) < 1+len(prefix) || Table(full[0]) != tbl {
			continue
		}
		if string(full[1:1+len(prefix)]) != string(prefix) {
			continue
		}
		if !fn([]byte(full[1:]), v) {
			break
		}
	}
	return nil
}

func (t *levelWriteTxn) Refresh() error {
	if err := t.db.Write(t.batch, nil); err != nil {
		return fmt.Errorf("store: refresh write: %w", err)
	}
	t.snap.Release()
	snap, err := t.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("store: refresh snapshot: %w", err)
	}
	t.snap = snap
	t.batch = new(leveldb.Batch)
	t.dirty = make(map[string][]byte)
	return nil
}

func (t *levelWriteTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.db.Write(t.batch, nil)
	t.snap.Release()
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (t *levelWriteTxn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	t.snap.Release()
	t.mu.Unlock()
	return nil
}

// Discard releases the write token if the caller never reached Commit or
// Abort (e.g. returning early after a mid-batch error), so a bailed-out
// writer can never wedge every future BeginWrite. Safe to call after
// Commit/Abort too: it is then a no-op.
func (t *levelWriteTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.snap.Release()
	t.mu.Unlock()
}
