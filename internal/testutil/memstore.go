// Package testutil provides in-memory implementations of storage interfaces
// for use in tests across the module. Never import this in production code.
package testutil

import (
	"strings"
	"sync"

	"github.com/nanolattice/nanod/store"
)

// MemStore is a thread-safe in-memory store.Store for tests, generalising
// the teacher's MemDB to the table-prefixed, transactional store.Store
// contract instead of bare Get/Set/Delete.
type MemStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	writeMu sync.Mutex
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) BeginRead() (store.ReadTxn, error) {
	m.mu.Lock()
	snap := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snap[k] = v
	}
	m.mu.Unlock()
	return &memReadTxn{snap: snap}, nil
}

func (m *MemStore) BeginWrite() (store.WriteTxn, error) {
	m.writeMu.Lock()
	m.mu.Lock()
	snap := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snap[k] = v
	}
	m.mu.Unlock()
	return &memWriteTxn{owner: m, snap: snap, dirty: make(map[string][]byte)}, nil
}

func fullKey(t store.Table, k []byte) string {
	return string(append([]byte{byte(t)}, k...))
}

type memReadTxn struct {
	snap map[string][]byte
}

func (t *memReadTxn) Get(tbl store.Table, k []byte) ([]byte, error) {
	v, ok := t.snap[fullKey(tbl, k)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (t *memReadTxn) Iterate(tbl store.Table, prefix []byte, fn func(key, value []byte) bool) error {
	full := fullKey(tbl, prefix)
	keys := sortedKeysWithPrefix(t.snap, full)
	for _, k := range keys {
		if !fn([]byte(k[1:]), t.snap[k]) {
			break
		}
	}
	return nil
}

func (t *memReadTxn) Discard() {}

type memWriteTxn struct {
	owner *MemStore
	snap  map[string][]byte
	dirty map[string][]byte // nil means deleted
	done  bool              // true once Commit/Abort/Discard has released writeMu
}

func (t *memWriteTxn) Get(tbl store.Table, k []byte) ([]byte, error) {
	full := fullKey(tbl, k)
	if v, ok := t.dirty[full]; ok {
		if v == nil {
			return nil, store.ErrNotFound
		}
		return v, nil
	}
	v, ok := t.snap[full]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (t *memWriteTxn) Put(tbl store.Table, k, v []byte) error {
	cp := append([]byte(nil), v...)
	t.dirty[fullKey(tbl, k)] = cp
	return nil
}

func (t *memWriteTxn) Delete(tbl store.Table, k []byte) error {
	t.dirty[fullKey(tbl, k)] = nil
	return nil
}

func (t *memWriteTxn) Iterate(tbl store.Table, prefix []byte, fn func(key, value []byte) bool) error {
	full := fullKey(tbl, prefix)
	merged := make(map[string][]byte, len(t.snap))
	for k, v := range t.snap {
		merged[k] = v
	}
	for k, v := range t.dirty {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	keys := sortedKeysWithPrefix(merged, full)
	for _, k := range keys {
		if !fn([]byte(k[1:]), merged[k]) {
			break
		}
	}
	return nil
}

func (t *memWriteTxn) flush() {
	t.owner.mu.Lock()
	for k, v := range t.dirty {
		if v == nil {
			delete(t.owner.data, k)
		} else {
			t.owner.data[k] = v
		}
	}
	t.owner.mu.Unlock()
}

func (t *memWriteTxn) Refresh() error {
	t.flush()
	t.owner.mu.Lock()
	snap := make(map[string][]byte, len(t.owner.data))
	for k, v := range t.owner.data {
		snap[k] = v
	}
	t.owner.mu.Unlock()
	t.snap = snap
	t.dirty = make(map[string][]byte)
	return nil
}

func (t *memWriteTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.flush()
	t.owner.writeMu.Unlock()
	return nil
}

func (t *memWriteTxn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	t.owner.writeMu.Unlock()
	return nil
}

// Discard releases writeMu if the caller never reached Commit or Abort, so a
// bailed-out writer can never wedge every future BeginWrite. Safe to call
// after Commit/Abort too: it is then a no-op.
func (t *memWriteTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.owner.writeMu.Unlock()
}

func sortedKeysWithPrefix(m map[string][]byte, prefix string) []string {
	var keys []string
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	// simple insertion sort: test stores are small, and lexicographic order
	// must match the real goleveldb-backed Store's iteration order.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
