package block

import (
	"encoding/binary"
	"fmt"

	"github.com/nanolattice/nanod/types"
)

// Marshal serialises the block's full wire representation: type tag,
// hashed fields (fixed order per variant), signature, then work. Work is
// little-endian for legacy blocks, big-endian for state blocks (§6).
func (b *Block) Marshal() []byte {
	buf := []byte{byte(b.Type)}
	switch b.Type {
	case LegacySend:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Destination[:]...)
		buf = append(buf, b.Balance.Bytes()...)
	case LegacyReceive:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Source[:]...)
	case LegacyOpen:
		buf = append(buf, b.Source[:]...)
		buf = append(buf, b.Representative[:]...)
		buf = append(buf, b.Account[:]...)
	case LegacyChange:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
	case State:
		buf = append(buf, b.Account[:]...)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
		buf = append(buf, b.Balance.Bytes()...)
		buf = append(buf, b.Link[:]...)
	default:
		panic(fmt.Sprintf("block: Marshal called on invalid block type %d", b.Type))
	}
	buf = append(buf, b.Signature[:]...)
	if b.Type.IsLegacy() {
		buf = append(buf, types.WorkLE(b.Work)...)
	} else {
		buf = append(buf, types.WorkBE(b.Work)...)
	}
	return buf
}

// Unmarshal decodes a block from its Marshal representation.
func Unmarshal(data []byte) (*Block, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("block: empty data")
	}
	typ := Type(data[0])
	body := data[1:]
	b := &Block{Type: typ}

	fieldsLen := 0
	switch typ {
	case LegacySend:
		fieldsLen = types.HashSize + types.AccountSize + types.AmountSize
	case LegacyReceive:
		fieldsLen = types.HashSize + types.HashSize
	case LegacyOpen:
		fieldsLen = types.HashSize + types.AccountSize + types.AccountSize
	case LegacyChange:
		fieldsLen = types.HashSize + types.AccountSize
	case State:
		fieldsLen = types.AccountSize + types.HashSize + types.AccountSize + types.AmountSize + types.HashSize
	default:
		return nil, fmt.Errorf("block: invalid block type %d", typ)
	}
	want := fieldsLen + types.SignatureSize + types.WorkSize
	if len(body) != want {
		return nil, fmt.Errorf("block: bad length for type %v: got %d want %d", typ, len(body), want)
	}

	off := 0
	read := func(n int) []byte {
		s := body[off : off+n]
		off += n
		return s
	}

	switch typ {
	case LegacySend:
		copy(b.Previous[:], read(types.HashSize))
		copy(b.Destination[:], read(types.AccountSize))
		amt, err := types.AmountFromBytes(read(types.AmountSize))
		if err != nil {
			return nil, err
		}
		b.Balance = amt
	case LegacyReceive:
		copy(b.Previous[:], read(types.HashSize))
		copy(b.Source[:], read(types.HashSize))
	case LegacyOpen:
		copy(b.Source[:], read(types.HashSize))
		copy(b.Representative[:], read(types.AccountSize))
		copy(b.Account[:], read(types.AccountSize))
	case LegacyChange:
		copy(b.Previous[:], read(types.HashSize))
		copy(b.Representative[:], read(types.AccountSize))
	case State:
		copy(b.Account[:], read(types.AccountSize))
		copy(b.Previous[:], read(types.HashSize))
		copy(b.Representative[:], read(types.AccountSize))
		amt, err := types.AmountFromBytes(read(types.AmountSize))
		if err != nil {
			return nil, err
		}
		b.Balance = amt
		copy(b.Link[:], read(types.HashSize))
	}

	copy(b.Signature[:], read(types.SignatureSize))
	workBytes := read(types.WorkSize)
	if typ.IsLegacy() {
		b.Work = types.WorkFromLE(workBytes)
	} else {
		b.Work = types.WorkFromBE(workBytes)
	}
	return b, nil
}

// Marshal serialises a Sideband record.
func (sb Sideband) Marshal() []byte {
	buf := make([]byte, 0, types.AccountSize+types.HashSize+types.AmountSize+8+8+3+types.AccountSize)
	buf = append(buf, sb.Account[:]...)
	buf = append(buf, sb.Successor[:]...)
	buf = append(buf, sb.Balance.Bytes()...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], sb.Height)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], sb.Timestamp)
	buf = append(buf, tmp[:]...)
	var flags byte
	if sb.Details.IsSend {
		flags |= 1
	}
	if sb.Details.IsReceive {
		flags |= 2
	}
	if sb.Details.IsEpoch {
		flags |= 4
	}
	buf = append(buf, flags, byte(sb.Details.Epoch), byte(sb.SourceEpoch))
	buf = append(buf, sb.Representative[:]...)
	return buf
}

// UnmarshalSideband decodes a Sideband record.
func UnmarshalSideband(data []byte) (Sideband, error) {
	var sb Sideband
	minLen := types.AccountSize + types.HashSize + types.AmountSize + 8 + 8 + 3 + types.AccountSize
	if len(data) != minLen {
		return sb, fmt.Errorf("block: bad sideband length: got %d want %d", len(data), minLen)
	}
	off := 0
	read := func(n int) []byte {
		s := data[off : off+n]
		off += n
		return s
	}
	copy(sb.Account[:], read(types.AccountSize))
	copy(sb.Successor[:], read(types.HashSize))
	amt, err := types.AmountFromBytes(read(types.AmountSize))
	if err != nil {
		return sb, err
	}
	sb.Balance = amt
	sb.Height = binary.BigEndian.Uint64(read(8))
	sb.Timestamp = binary.BigEndian.Uint64(read(8))
	flags := read(1)[0]
	sb.Details.IsSend = flags&1 != 0
	sb.Details.IsReceive = flags&2 != 0
	sb.Details.IsEpoch = flags&4 != 0
	sb.Details.Epoch = Epoch(read(1)[0])
	sb.SourceEpoch = Epoch(read(1)[0])
	copy(sb.Representative[:], read(types.AccountSize))
	return sb, nil
}
