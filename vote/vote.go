// Package vote implements the Vote Processor, Vote Generator, and Local Vote
// History (§4.7, §4.8): validating and tallying incoming votes, generating
// this node's own votes when it acts as a representative, and caching
// recent votes so the Request Aggregator can answer confirm-requests
// without re-signing.
package vote

import (
	"github.com/nanolattice/nanod/types"
)

// FinalTimestamp marks a final vote: the voter commits to a single block on
// the root and will never vote for a conflicting one (§4.7/4.8).
const FinalTimestamp = ^uint64(0)

// Vote is one representative's signed choice of block(s), one per root
// referenced by Hashes (batched votes cover multiple roots in one message).
type Vote struct {
	Account   types.Account
	Signature types.Signature
	Timestamp uint64
	Hashes    []types.Hash
}

// IsFinal reports whether v is a final vote.
func (v *Vote) IsFinal() bool {
	return v.Timestamp == FinalTimestamp
}

// SigningHash returns the digest the vote's signature covers: blake2b256 of
// every hash in order followed by the big-endian timestamp (§4.7: "signature
// ... over hash(hashes || timestamp)").
func (v *Vote) SigningHash() types.Hash {
	parts := make([][]byte, 0, len(v.Hashes)+1)
	for _, h := range v.Hashes {
		parts = append(parts, h.Bytes())
	}
	var tsBuf [8]byte
	for i := 0; i < 8; i++ {
		tsBuf[7-i] = byte(v.Timestamp >> (8 * i))
	}
	parts = append(parts, tsBuf[:])
	return types.BlockHash(parts...)
}

// Sign signs v with kp and sets both Account and Signature.
func (v *Vote) Sign(kp *types.KeyPair) {
	v.Account = kp.Public
	v.Signature = kp.Sign(v.SigningHash())
}

// Verify reports whether v's signature is valid for its claimed account.
func (v *Vote) Verify() bool {
	return types.Verify(v.Account, v.SigningHash(), v.Signature)
}
