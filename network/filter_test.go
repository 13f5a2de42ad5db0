package network

import "testing"

func TestApplyReportsExistenceOnSecondCall(t *testing.T) {
	f := NewDuplicateFilter(64)
	bytes := []byte{1, 2, 3}

	_, _, existed := f.Apply(bytes)
	if existed {
		t.Fatal("first Apply should report the digest as new")
	}
	_, _, existed = f.Apply(bytes)
	if !existed {
		t.Fatal("second Apply of the same bytes should report existence")
	}
}

func TestApplyDistinguishesDifferentPayloads(t *testing.T) {
	f := NewDuplicateFilter(1024)
	hi1, lo1, existed1 := f.Apply([]byte("alpha"))
	hi2, lo2, existed2 := f.Apply([]byte("beta"))
	if existed1 || existed2 {
		t.Fatal("distinct payloads should both report as new")
	}
	if hi1 == hi2 && lo1 == lo2 {
		t.Fatal("distinct payloads produced the same digest")
	}
}

func TestAdvanceExpiresOldEntries(t *testing.T) {
	f := NewDuplicateFilter(8)
	bytes := []byte{9, 9, 9}

	hi, lo, _ := f.Apply(bytes)
	if !f.Check(hi, lo) {
		t.Fatal("expected the digest to be present immediately after Apply")
	}

	f.Advance(defaultAgeCutoff + 1)
	if f.Check(hi, lo) {
		t.Fatal("expected the digest to have expired past the age cutoff")
	}
}
