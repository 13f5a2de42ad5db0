package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// AmountSize is the width in bytes of a raw balance amount (128-bit).
const AmountSize = 16

// Amount is a 128-bit unsigned raw balance. It is monotone non-negative by
// construction (there is no signed representation); subtraction that would
// underflow is rejected by the caller before it ever reaches an Amount.
type Amount struct {
	Hi uint64
	Lo uint64
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool {
	return a.Hi == 0 && a.Lo == 0
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	if a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	if a.Lo != b.Lo {
		if a.Lo < b.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

// maxAmount is the largest representable 128-bit value, used to detect
// Add overflow via big.Int (simpler and less error-prone than manual
// carry-bit arithmetic for a value object that is not on a hot path).
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Add returns a+b and whether the addition overflowed 128 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sum.Cmp(maxAmount) > 0 {
		return ZeroAmount, true
	}
	return amountFromBigInt(sum), false
}

func amountFromBigInt(v *big.Int) Amount {
	b := v.Bytes()
	padded := make([]byte, AmountSize)
	copy(padded[AmountSize-len(b):], b)
	a, _ := AmountFromBytes(padded)
	return a
}

// Sub returns a-b and whether the subtraction underflowed (b > a).
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.LessThan(b) {
		return ZeroAmount, true
	}
	lo := a.Lo - b.Lo
	borrow := uint64(0)
	if a.Lo < b.Lo {
		borrow = 1
	}
	hi := a.Hi - b.Hi - borrow
	return Amount{Hi: hi, Lo: lo}, false
}

// Bytes returns the 16-byte big-endian encoding.
func (a Amount) Bytes() []byte {
	out := make([]byte, AmountSize)
	binary.BigEndian.PutUint64(out[0:8], a.Hi)
	binary.BigEndian.PutUint64(out[8:16], a.Lo)
	return out
}

// AmountFromBytes decodes a 16-byte big-endian amount.
func AmountFromBytes(b []byte) (Amount, error) {
	if len(b) != AmountSize {
		return ZeroAmount, fmt.Errorf("types: amount must be %d bytes, got %d", AmountSize, len(b))
	}
	return Amount{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// AmountFromUint64 builds an Amount from a plain uint64 (upper 64 bits zero).
func AmountFromUint64(v uint64) Amount {
	return Amount{Lo: v}
}

// BigInt converts a to a math/big.Int for display and arithmetic that needs
// decimal formatting (e.g. RPC responses).
func (a Amount) BigInt() *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(a.Hi), 64)
	v.Or(v, new(big.Int).SetUint64(a.Lo))
	return v
}

func (a Amount) String() string {
	return a.BigInt().String()
}
