package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/election"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/repregister"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	l     *ledger.Ledger
	s     store.Store
	bp    *blockprocessor.Processor
	reps  *repregister.Register
	elect *election.Manager
}

// NewHandler creates an RPC Handler.
func NewHandler(l *ledger.Ledger, s store.Store, bp *blockprocessor.Processor, reps *repregister.Register, elect *election.Manager) *Handler {
	return &Handler{l: l, s: s, bp: bp, reps: reps, elect: elect}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "account_info":
		return h.accountInfo(req)
	case "account_balance":
		return h.accountBalance(req)
	case "block_info":
		return h.blockInfo(req)
	case "block_count":
		return h.blockCount(req)
	case "process":
		return h.process(req)
	case "representatives":
		return h.representatives(req)
	case "active_elections_count":
		return h.activeElectionsCount(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) accountInfo(req Request) Response {
	var params struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	acc, err := types.AccountFromHex(params.Account)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	tx, err := h.s.BeginRead()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	defer tx.Discard()

	info, err := h.l.GetAccountInfo(tx, acc)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	confInfo, err := h.l.GetConfirmationHeight(tx, acc)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"frontier":            info.Head.String(),
		"open_block":          info.Open.String(),
		"representative":      info.Representative.String(),
		"balance":             info.Balance.String(),
		"modified_timestamp":  info.Modified,
		"block_count":         info.BlockCount,
		"confirmation_height": confInfo.Height,
		"confirmed_frontier":  confInfo.Frontier.String(),
	})
}

func (h *Handler) accountBalance(req Request) Response {
	var params struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	acc, err := types.AccountFromHex(params.Account)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	tx, err := h.s.BeginRead()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	defer tx.Discard()

	balance, err := h.l.AccountBalance(tx, acc)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"balance": balance.String()})
}

func (h *Handler) blockInfo(req Request) Response {
	var params struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	hash, err := types.HashFromHex(params.Hash)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	tx, err := h.s.BeginRead()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	defer tx.Discard()

	stored, err := h.l.GetBlock(tx, hash)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, blockView(stored))
}

// blockCount walks the block table directly: this from-scratch store keeps
// no maintained running total the way the real ledger does, so the count
// is derived on demand rather than cached.
func (h *Handler) blockCount(req Request) Response {
	tx, err := h.s.BeginRead()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	defer tx.Discard()

	count := 0
	if err := tx.Iterate(store.TableBlocks, nil, func(key, value []byte) bool {
		count++
		return true
	}); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"count": count})
}

// process submits an already-signed, already-worked block to the Block
// Processor as a local-priority entry. Submission is fire-and-forget: the
// hash is returned immediately, acceptance or rejection is asynchronous and
// observable on the event bus / websocket notifier, not this response.
func (h *Handler) process(req Request) Response {
	var params blockJSON
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	blk, err := params.toBlock()
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	h.bp.Add(&blockprocessor.Entry{Block: blk, Source: blockprocessor.SourceLocal})
	return okResponse(req.ID, map[string]string{"hash": blk.Hash().String()})
}

func (h *Handler) representatives(req Request) Response {
	var params struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(req.Params, &params)
	if params.Count <= 0 || params.Count > 1000 {
		params.Count = 100
	}

	tx, err := h.s.BeginRead()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	defer tx.Discard()

	type entry struct {
		Account string `json:"account"`
		Weight  string `json:"weight"`
	}
	var out []entry
	for _, rep := range h.reps.Representatives() {
		w, err := h.l.Weight(tx, rep.Account)
		if err != nil {
			continue
		}
		out = append(out, entry{Account: rep.Account.String(), Weight: w.String()})
	}
	if len(out) > params.Count {
		out = out[:params.Count]
	}
	return okResponse(req.ID, out)
}

func (h *Handler) activeElectionsCount(req Request) Response {
	return okResponse(req.ID, map[string]any{"count": h.elect.Len()})
}

// blockJSON is the wire JSON shape accepted/returned for a block: every
// hash/account/amount field hex-encoded, type as its lowercase name.
type blockJSON struct {
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

func blockView(stored *block.StoredBlock) blockJSON {
	b := stored.Block
	v := blockJSON{
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
		v.Balance = balance.String()
	}
	return v
}

func (j *blockJSON) toBlock() (*block.Block, error) {
	var typ block.Type
	switch j.Type {
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
		return nil, fmt.Errorf("rpc: unknown block type %q", j.Type)
	}

	blk := &block.Block{Type: typ}
	var err error
	if j.Account != "" {
		if blk.Account, err = types.AccountFromHex(j.Account); err != nil {
			return nil, fmt.Errorf("rpc: account: %w", err)
		}
	}
	if j.Previous != "" {
		if blk.Previous, err = types.HashFromHex(j.Previous); err != nil {
			return nil, fmt.Errorf("rpc: previous: %w", err)
		}
	}
	if j.Representative != "" {
		if blk.Representative, err = types.AccountFromHex(j.Representative); err != nil {
			return nil, fmt.Errorf("rpc: representative: %w", err)
		}
	}
	if j.Destination != "" {
		if blk.Destination, err = types.AccountFromHex(j.Destination); err != nil {
			return nil, fmt.Errorf("rpc: destination: %w", err)
		}
	}
	if j.Source != "" {
		if blk.Source, err = types.HashFromHex(j.Source); err != nil {
			return nil, fmt.Errorf("rpc: source: %w", err)
		}
	}
	if j.Link != "" {
		if blk.Link, err = types.HashFromHex(j.Link); err != nil {
			return nil, fmt.Errorf("rpc: link: %w", err)
		}
	}
	if j.Balance != "" {
		raw, decErr := hex.DecodeString(j.Balance)
		if decErr != nil || len(raw) > types.AmountSize {
			return nil, fmt.Errorf("rpc: balance: invalid hex amount")
		}
		padded := make([]byte, types.AmountSize)
		copy(padded[types.AmountSize-len(raw):], raw)
		if blk.Balance, err = types.AmountFromBytes(padded); err != nil {
			return nil, fmt.Errorf("rpc: balance: %w", err)
		}
	}
	if j.Signature != "" {
		raw, decErr := hex.DecodeString(j.Signature)
		if decErr != nil {
			return nil, fmt.Errorf("rpc: signature: %w", decErr)
		}
		copy(blk.Signature[:], raw)
	}
	if j.Work != "" {
		raw, decErr := hex.DecodeString(j.Work)
		if decErr != nil {
			return nil, fmt.Errorf("rpc: work: %w", decErr)
		}
		blk.Work = types.WorkFromBE(raw)
	}
	return blk, nil
}
