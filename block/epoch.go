package block

import "github.com/nanolattice/nanod/types"

// Epoch is a totally ordered protocol-upgrade generation.
type Epoch int

const (
	EpochUnspecified Epoch = iota
	Epoch0
	Epoch1
	Epoch2
)

func (e Epoch) String() string {
	switch e {
	case Epoch0:
		return "epoch_0"
	case Epoch1:
		return "epoch_1"
	case Epoch2:
		return "epoch_2"
	default:
		return "epoch_unspecified"
	}
}

// Next returns the epoch immediately after e, used when checking that an
// epoch block advances the account exactly one generation.
func (e Epoch) Next() Epoch {
	return e + 1
}

// epochLinkMarker builds the 32-byte Link value for an epoch upgrade block:
// the ASCII marker text right-aligned in the hash, left-padded with zeros.
func epochLinkMarker(marker string) types.Hash {
	var h types.Hash
	b := []byte(marker)
	copy(h[types.HashSize-len(b):], b)
	return h
}

// EpochLink returns the well-known Link value that a state block must carry
// to be recognised as the upgrade block into epoch e (e must be Epoch1 or
// Epoch2; there is no upgrade block into Epoch0, the genesis epoch).
func EpochLink(e Epoch) (types.Hash, bool) {
	switch e {
	case Epoch1:
		return epochLinkMarker("epoch v1 block"), true
	case Epoch2:
		return epochLinkMarker("epoch v2 block"), true
	default:
		return types.Hash{}, false
	}
}

// EpochFromLink reports which epoch upgrade, if any, the given Link value
// represents.
func EpochFromLink(link types.Hash) (Epoch, bool) {
	for _, e := range []Epoch{Epoch1, Epoch2} {
		marker, _ := EpochLink(e)
		if marker == link {
			return e, true
		}
	}
	return EpochUnspecified, false
}
