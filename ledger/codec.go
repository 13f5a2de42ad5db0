package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

func (ai AccountInfo) marshal() []byte {
	buf := make([]byte, 0, types.HashSize*2+types.AccountSize+types.AmountSize+8+8+1)
	buf = append(buf, ai.Head[:]...)
	buf = append(buf, ai.Open[:]...)
	buf = append(buf, ai.Representative[:]...)
	buf = append(buf, ai.Balance.Bytes()...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], ai.Modified)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], ai.BlockCount)
	buf = append(buf, tmp[:]...)
	buf = append(buf, byte(ai.Epoch))
	return buf
}

func unmarshalAccountInfo(data []byte) (AccountInfo, error) {
	var ai AccountInfo
	want := types.HashSize*2 + types.AccountSize + types.AmountSize + 8 + 8 + 1
	if len(data) != want {
		return ai, fmt.Errorf("ledger: bad account info length: got %d want %d", len(data), want)
	}
	off := 0
	read := func(n int) []byte { s := data[off : off+n]; off += n; return s }
	copy(ai.Head[:], read(types.HashSize))
	copy(ai.Open[:], read(types.HashSize))
	copy(ai.Representative[:], read(types.AccountSize))
	amt, err := types.AmountFromBytes(read(types.AmountSize))
	if err != nil {
		return ai, err
	}
	ai.Balance = amt
	ai.Modified = binary.BigEndian.Uint64(read(8))
	ai.BlockCount = binary.BigEndian.Uint64(read(8))
	ai.Epoch = block.Epoch(read(1)[0])
	return ai, nil
}

func pendingKeyBytes(k PendingKey) []byte {
	buf := make([]byte, 0, types.AccountSize+types.HashSize)
	buf = append(buf, k.Account[:]...)
	buf = append(buf, k.Send[:]...)
	return buf
}

func (pi PendingInfo) marshal() []byte {
	buf := make([]byte, 0, types.AccountSize+types.AmountSize+1)
	buf = append(buf, pi.Source[:]...)
	buf = append(buf, pi.Amount.Bytes()...)
	buf = append(buf, byte(pi.Epoch))
	return buf
}

func unmarshalPendingInfo(data []byte) (PendingInfo, error) {
	var pi PendingInfo
	want := types.AccountSize + types.AmountSize + 1
	if len(data) != want {
		return pi, fmt.Errorf("ledger: bad pending info length: got %d want %d", len(data), want)
	}
	off := 0
	read := func(n int) []byte { s := data[off : off+n]; off += n; return s }
	copy(pi.Source[:], read(types.AccountSize))
	amt, err := types.AmountFromBytes(read(types.AmountSize))
	if err != nil {
		return pi, err
	}
	pi.Amount = amt
	pi.Epoch = block.Epoch(read(1)[0])
	return pi, nil
}

func (c ConfirmationHeightInfo) marshal() []byte {
	buf := make([]byte, 8+types.HashSize)
	binary.BigEndian.PutUint64(buf[:8], c.Height)
	copy(buf[8:], c.Frontier[:])
	return buf
}

func unmarshalConfirmationHeightInfo(data []byte) (ConfirmationHeightInfo, error) {
	var c ConfirmationHeightInfo
	if len(data) != 8+types.HashSize {
		return c, fmt.Errorf("ledger: bad confirmation height length: got %d", len(data))
	}
	c.Height = binary.BigEndian.Uint64(data[:8])
	copy(c.Frontier[:], data[8:])
	return c, nil
}
