package network

import (
	"encoding/hex"
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

// wireBlock is the hex-encoded JSON shape a block takes on the wire, shared
// by Publish and the bootstrap responses below. It deliberately mirrors the
// RPC layer's blockJSON rather than importing it, keeping the network and
// RPC packages independent of one another.
type wireBlock struct {
	Type           string `json:"type"`
	Account        string `json:"account,omitempty"`
	Previous       string `json:"previous,omitempty"`
	Representative string `json:"representative,omitempty"`
	Balance        string `json:"balance,omitempty"`
	Link           string `json:"link,omitempty"`
	Destination    string `json:"destination,omitempty"`
	Source         string `json:"source,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Work           string `json:"work,omitempty"`
}

func fromBlock(b *block.Block) wireBlock {
	w := wireBlock{
		Type:           b.Type.String(),
		Account:        b.Account.String(),
		Previous:       b.Previous.String(),
		Representative: b.Representative.String(),
		Link:           b.Link.String(),
		Destination:    b.Destination.String(),
		Source:         b.Source.String(),
		Signature:      hex.EncodeToString(b.Signature.Bytes()),
		Work:           hex.EncodeToString(types.WorkBE(b.Work)),
	}
	if balance, ok := b.BalanceField(); ok {
		w.Balance = balance.String()
	}
	return w
}

func (w *wireBlock) toBlock() (*block.Block, error) {
	var typ block.Type
	switch w.Type {
	case "send":
		typ = block.LegacySend
	case "receive":
		typ = block.LegacyReceive
	case "open":
		typ = block.LegacyOpen
	case "change":
		typ = block.LegacyChange
	case "state":
		typ = block.State
	default:
		return nil, fmt.Errorf("network: unknown block type %q", w.Type)
	}

	blk := &block.Block{Type: typ}
	var err error
	if w.Account != "" {
		if blk.Account, err = types.AccountFromHex(w.Account); err != nil {
			return nil, fmt.Errorf("network: account: %w", err)
		}
	}
	if w.Previous != "" {
		if blk.Previous, err = types.HashFromHex(w.Previous); err != nil {
			return nil, fmt.Errorf("network: previous: %w", err)
		}
	}
	if w.Representative != "" {
		if blk.Representative, err = types.AccountFromHex(w.Representative); err != nil {
			return nil, fmt.Errorf("network: representative: %w", err)
		}
	}
	if w.Destination != "" {
		if blk.Destination, err = types.AccountFromHex(w.Destination); err != nil {
			return nil, fmt.Errorf("network: destination: %w", err)
		}
	}
	if w.Source != "" {
		if blk.Source, err = types.HashFromHex(w.Source); err != nil {
			return nil, fmt.Errorf("network: source: %w", err)
		}
	}
	if w.Link != "" {
		if blk.Link, err = types.HashFromHex(w.Link); err != nil {
			return nil, fmt.Errorf("network: link: %w", err)
		}
	}
	if w.Balance != "" {
		raw, decErr := hex.DecodeString(w.Balance)
		if decErr != nil || len(raw) > types.AmountSize {
			return nil, fmt.Errorf("network: balance: invalid hex amount")
		}
		padded := make([]byte, types.AmountSize)
		copy(padded[types.AmountSize-len(raw):], raw)
		if blk.Balance, err = types.AmountFromBytes(padded); err != nil {
			return nil, fmt.Errorf("network: balance: %w", err)
		}
	}
	if w.Signature != "" {
		raw, decErr := hex.DecodeString(w.Signature)
		if decErr != nil {
			return nil, fmt.Errorf("network: signature: %w", decErr)
		}
		copy(blk.Signature[:], raw)
	}
	if w.Work != "" {
		raw, decErr := hex.DecodeString(w.Work)
		if decErr != nil {
			return nil, fmt.Errorf("network: work: %w", decErr)
		}
		blk.Work = types.WorkFromBE(raw)
	}
	return blk, nil
}
