package network

import (
	"crypto/rand"
	"sync"
	"sync/atomic"

	"github.com/dchest/siphash"
)

// DefaultFilterSize is the duplicate filter's default slot count (§4.10).
const DefaultFilterSize = 256 * 1024

// defaultAgeCutoff bounds how many epochs a slot's occupant is still
// considered "the same message" before a colliding digest simply overwrites
// it, mirroring the original implementation's age_cutoff field.
const defaultAgeCutoff = 1

type filterEntry struct {
	hi, lo uint64
	epoch  uint64
}

// DuplicateFilter is a fixed-size, open-addressed table of recently seen
// message digests (§4.10): a probabilistic dedup cache where a false
// positive (unique message flagged as duplicate) only happens on a 128-bit
// SipHash collision, and a false negative (a repeat missed because its slot
// was overwritten) grows rarer as the table grows.
type DuplicateFilter struct {
	k0, k1    uint64
	ageCutoff uint64

	mu    sync.Mutex
	slots []filterEntry
	epoch atomic.Uint64
}

// NewDuplicateFilter builds a filter with size slots and a random SipHash
// key (two filters never agree on slot placement, which is intentional: it
// stops an attacker pre-computing digest collisions against a known key).
func NewDuplicateFilter(size int) *DuplicateFilter {
	if size <= 0 {
		size = DefaultFilterSize
	}
	var keyBuf [16]byte
	_, _ = rand.Read(keyBuf[:])
	return &DuplicateFilter{
		k0:        uint64(keyBuf[0]) | uint64(keyBuf[1])<<8 | uint64(keyBuf[2])<<16 | uint64(keyBuf[3])<<24 | uint64(keyBuf[4])<<32 | uint64(keyBuf[5])<<40 | uint64(keyBuf[6])<<48 | uint64(keyBuf[7])<<56,
		k1:        uint64(keyBuf[8]) | uint64(keyBuf[9])<<8 | uint64(keyBuf[10])<<16 | uint64(keyBuf[11])<<24 | uint64(keyBuf[12])<<32 | uint64(keyBuf[13])<<40 | uint64(keyBuf[14])<<48 | uint64(keyBuf[15])<<56,
		ageCutoff: defaultAgeCutoff,
		slots:     make([]filterEntry, size),
	}
}

// Hash computes the filter's 128-bit SipHash-2-4 digest of bytes.
func (f *DuplicateFilter) Hash(bytes []byte) (hi, lo uint64) {
	return siphash.Hash128(f.k0, f.k1, bytes)
}

// Apply hashes bytes, records the digest, and reports whether it already
// occupied its slot within the age cutoff.
func (f *DuplicateFilter) Apply(bytes []byte) (hi, lo uint64, existed bool) {
	hi, lo = f.Hash(bytes)
	return hi, lo, f.ApplyDigest(hi, lo)
}

// ApplyDigest is Apply for a digest already computed (e.g. shared across a
// fan-out of the same message to several channels).
func (f *DuplicateFilter) ApplyDigest(hi, lo uint64) bool {
	idx := slotIndex(hi, lo, len(f.slots))
	now := f.epoch.Load()

	f.mu.Lock()
	defer f.mu.Unlock()
	e := &f.slots[idx]
	existed := e.hi == hi && e.lo == lo && e.epoch+f.ageCutoff >= now
	if !existed {
		*e = filterEntry{hi: hi, lo: lo, epoch: now}
	}
	return existed
}

// Check reports whether digest is present without mutating the filter.
func (f *DuplicateFilter) Check(hi, lo uint64) bool {
	idx := slotIndex(hi, lo, len(f.slots))
	now := f.epoch.Load()
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.slots[idx]
	return e.hi == hi && e.lo == lo && e.epoch+f.ageCutoff >= now
}

// Advance ages the filter forward by delta epochs, letting old digests
// expire without an explicit scan over the table.
func (f *DuplicateFilter) Advance(delta uint64) {
	f.epoch.Add(delta)
}

func slotIndex(hi, lo uint64, n int) int {
	if n <= 0 {
		return 0
	}
	// A 128-bit value mod a table size that isn't a power of two needs the
	// full value, not just the low word, to spread collisions evenly.
	mixed := hi ^ (lo*0x9e3779b97f4a7c15 + 0x6c62272e07bb0142)
	return int(mixed % uint64(n))
}
