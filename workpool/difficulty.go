package workpool

import (
	"encoding/binary"

	"github.com/nanolattice/nanod/types"
	"golang.org/x/crypto/blake2b"
)

// Details classifies the kind of block a work value was generated for,
// since send/receive/epoch-v1/epoch-v2 each carry a distinct minimum
// difficulty threshold (§4.2 step 5, §4.11).
type Details struct {
	IsSend    bool
	IsEpochV1 bool
	IsEpochV2 bool
}

// Policy maps block Details to the minimum acceptable difficulty.
type Policy struct {
	Send     uint64
	Receive  uint64
	EpochV1  uint64
	EpochV2  uint64
}

// DefaultPolicy mirrors the source's conservative production thresholds,
// scaled down for a from-scratch reference implementation: sends carry the
// highest bar, receives the lowest, epoch upgrades intermediate.
var DefaultPolicy = Policy{
	Send:    0xffffffc000000000,
	Receive: 0xfffffff800000000,
	EpochV1: 0xfffffe0000000000,
	EpochV2: 0xfffffff800000000,
}

// Threshold returns the minimum acceptable difficulty for the given details.
func (p Policy) Threshold(d Details) uint64 {
	switch {
	case d.IsEpochV2:
		return p.EpochV2
	case d.IsEpochV1:
		return p.EpochV1
	case d.IsSend:
		return p.Send
	default:
		return p.Receive
	}
}

// Difficulty computes blake2b(work || root) interpreted as a big-endian
// uint64 (§4.11). root is the account for an open block, the previous hash
// otherwise.
func Difficulty(root types.Hash, work types.Work) uint64 {
	h, _ := blake2b.New512(nil)
	var workBuf [types.WorkSize]byte
	binary.LittleEndian.PutUint64(workBuf[:], uint64(work))
	h.Write(workBuf[:])
	h.Write(root[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[len(sum)-8:])
}

// Validate reports whether work meets policy's threshold for details
// against root.
func Validate(policy Policy, details Details, root types.Hash, work types.Work) bool {
	return Difficulty(root, work) >= policy.Threshold(details)
}
