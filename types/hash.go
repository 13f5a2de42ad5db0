// Package types defines the fixed-width wire value objects shared across
// the ledger, network, and consensus packages: hashes, accounts, amounts,
// signatures, and work nonces. Every value object serialises big-endian
// per the wire format, except Work, which is little-endian for legacy
// blocks and big-endian for state blocks (callers pick the encoding).
package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the width in bytes of a block/root/link hash.
const HashSize = 32

// Hash is a blake2b-256 digest used for block identity, roots, and links.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash used as a sentinel (no predecessor, no link).
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the upper-case hex encoding, matching the wire/CLI convention.
func (h Hash) String() string {
	return fmt.Sprintf("%X", h[:])
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromHex decodes an upper- or lower-case hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("types: invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("types: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BlockHash computes the blake2b-256 digest of the concatenated hashed
// fields of a block (or any other domain object hashed the same way).
func BlockHash(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on a bad key length, and we pass none.
		panic(fmt.Sprintf("types: blake2b.New256: %v", err))
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
