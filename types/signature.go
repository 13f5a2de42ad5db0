package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// SignatureSize is the width in bytes of a block/vote signature.
const SignatureSize = ed25519.SignatureSize // 64

// Signature is an ed25519 signature over a block or vote hash.
type Signature [SignatureSize]byte

func (s Signature) String() string {
	return fmt.Sprintf("%X", s[:])
}

// Bytes returns a copy of the underlying 64 bytes.
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out, s[:])
	return out
}

// SignatureFromHex decodes a hex-encoded signature.
func SignatureFromHex(str string) (Signature, error) {
	var s Signature
	b, err := hex.DecodeString(str)
	if err != nil {
		return s, fmt.Errorf("types: invalid signature hex: %w", err)
	}
	if len(b) != SignatureSize {
		return s, fmt.Errorf("types: signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Verify reports whether sig is a valid signature by account over hash.
func Verify(account Account, hash Hash, sig Signature) bool {
	return ed25519.Verify(account[:], hash[:], sig[:])
}
