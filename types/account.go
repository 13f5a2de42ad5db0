package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AccountSize is the width in bytes of an account/public key.
const AccountSize = ed25519.PublicKeySize // 32

// Account is an ed25519 public key identifying a chain. The spec's
// "ed25519-blake2b public key" — see DESIGN.md for the signature-primitive
// decision; the key material itself is a plain ed25519 public key.
type Account [AccountSize]byte

// BurnAccount is the designated zero account; no chain may open on it.
var BurnAccount Account

// IsZero reports whether a is the burn/zero account.
func (a Account) IsZero() bool {
	return a == BurnAccount
}

func (a Account) String() string {
	return fmt.Sprintf("%X", a[:])
}

// Bytes returns a copy of the underlying 32 bytes.
func (a Account) Bytes() []byte {
	out := make([]byte, AccountSize)
	copy(out, a[:])
	return out
}

// AccountFromHex decodes a hex-encoded public key into an Account.
func AccountFromHex(s string) (Account, error) {
	var a Account
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("types: invalid account hex: %w", err)
	}
	if len(b) != AccountSize {
		return a, fmt.Errorf("types: account must be %d bytes, got %d", AccountSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AccountFromBytes copies b into an Account, erroring on the wrong length.
func AccountFromBytes(b []byte) (Account, error) {
	var a Account
	if len(b) != AccountSize {
		return a, fmt.Errorf("types: account must be %d bytes, got %d", AccountSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// KeyPair is an ed25519 private/public pair used to sign blocks and votes.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  Account
}

// GenerateKeyPair creates a fresh random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("types: generate key pair: %w", err)
	}
	acc, err := AccountFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: acc}, nil
}

// KeyPairFromSeed deterministically derives a key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("types: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	acc, err := AccountFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: acc}, nil
}

// Sign signs hash (typically a block or vote hash) with the private key.
func (k *KeyPair) Sign(hash Hash) Signature {
	raw := ed25519.Sign(k.Private, hash[:])
	var sig Signature
	copy(sig[:], raw)
	return sig
}
