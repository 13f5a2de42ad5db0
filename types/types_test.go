package types

import "testing"

func TestHashFromHexRoundtrip(t *testing.T) {
	h := BlockHash([]byte("hello"))
	back, err := HashFromHex(h.String())
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if back != h {
		t.Errorf("roundtrip mismatch: got %s want %s", back, h)
	}
}

func TestHashFromHexBadLength(t *testing.T) {
	if _, err := HashFromHex("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestKeyPairSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	hash := BlockHash([]byte("block contents"))
	sig := kp.Sign(hash)
	if !Verify(kp.Public, hash, sig) {
		t.Error("valid signature failed to verify")
	}
	other := BlockHash([]byte("different contents"))
	if Verify(kp.Public, other, sig) {
		t.Error("signature verified against the wrong hash")
	}
}

func TestAmountAddSub(t *testing.T) {
	a := AmountFromUint64(100)
	b := AmountFromUint64(40)

	sum, overflow := a.Add(b)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if sum.Cmp(AmountFromUint64(140)) != 0 {
		t.Errorf("sum: got %s want 140", sum)
	}

	diff, underflow := a.Sub(b)
	if underflow {
		t.Fatal("unexpected underflow")
	}
	if diff.Cmp(AmountFromUint64(60)) != 0 {
		t.Errorf("diff: got %s want 60", diff)
	}

	_, underflow = b.Sub(a)
	if !underflow {
		t.Error("expected underflow when subtracting a larger amount")
	}
}

func TestAmountAddOverflow(t *testing.T) {
	max := Amount{Hi: ^uint64(0), Lo: ^uint64(0)}
	_, overflow := max.Add(AmountFromUint64(1))
	if !overflow {
		t.Error("expected overflow adding 1 to the maximum amount")
	}
}

func TestAmountBytesRoundtrip(t *testing.T) {
	a := Amount{Hi: 0x0102030405060708, Lo: 0x1112131415161718}
	back, err := AmountFromBytes(a.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if back != a {
		t.Errorf("roundtrip mismatch: got %+v want %+v", back, a)
	}
}

func TestWorkEndianness(t *testing.T) {
	w := Work(0x0102030405060708)
	le := WorkLE(w)
	be := WorkBE(w)
	if WorkFromLE(le) != w {
		t.Error("little-endian roundtrip failed")
	}
	if WorkFromBE(be) != w {
		t.Error("big-endian roundtrip failed")
	}
	if le[0] == be[0] {
		t.Error("expected different first byte for LE vs BE encodings of a non-palindromic value")
	}
}
