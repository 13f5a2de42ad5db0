package types

import "encoding/binary"

// WorkSize is the width in bytes of a proof-of-work nonce.
const WorkSize = 8

// Work is a 64-bit proof-of-work nonce. Legacy blocks serialise it
// little-endian on the wire; state blocks serialise it big-endian
// (§6 of the spec) — callers pick the encoding via WorkLE/WorkBE below
// rather than this type carrying an implicit endianness.
type Work uint64

// WorkLE encodes w little-endian (legacy block wire format).
func WorkLE(w Work) []byte {
	out := make([]byte, WorkSize)
	binary.LittleEndian.PutUint64(out, uint64(w))
	return out
}

// WorkBE encodes w big-endian (state block wire format).
func WorkBE(w Work) []byte {
	out := make([]byte, WorkSize)
	binary.BigEndian.PutUint64(out, uint64(w))
	return out
}

// WorkFromLE decodes a little-endian work nonce.
func WorkFromLE(b []byte) Work { return Work(binary.LittleEndian.Uint64(b)) }

// WorkFromBE decodes a big-endian work nonce.
func WorkFromBE(b []byte) Work { return Work(binary.BigEndian.Uint64(b)) }
