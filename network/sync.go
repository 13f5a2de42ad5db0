package network

import (
	"bytes"

	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
)

// FrontierReqBody asks a peer to start streaming (account, frontier hash)
// pairs from start onward.
type FrontierReqBody struct {
	Start string `json:"start"`
	Count uint32 `json:"count"`
}

// FrontierBody is one (account, frontier) pair in a FrontierReq response.
type FrontierBody struct {
	Account  string `json:"account"`
	Frontier string `json:"frontier"`
}

// BulkPullBody asks a peer for every block from Start back to End (End may
// be the zero hash, meaning walk back to the account's open block).
type BulkPullBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BulkPullResponseBody carries the requested chain, oldest block first so
// the receiver's block processor can apply it in order.
type BulkPullResponseBody struct {
	Blocks []wireBlock `json:"blocks"`
}

// maxBulkPullBlocks bounds a single bulk_pull response.
const maxBulkPullBlocks = 128

// Bootstrapper answers FrontierReq/BulkPull requests from ledger state and
// drives outgoing bootstrap requests, generalising the teacher's height-
// indexed Syncer to the account-chain bulk_pull/frontier_req pair.
type Bootstrapper struct {
	l  *ledger.Ledger
	s  store.Store
	bp BlockSource
}

func NewBootstrapper(l *ledger.Ledger, s store.Store, bp BlockSource) *Bootstrapper {
	return &Bootstrapper{l: l, s: s, bp: bp}
}

// HandleFrontierReq streams up to req.Count (default and cap 1000)
// (account, frontier) pairs from req.Start onward, one message per pair.
// Node.dispatch routes FrontierReq and BulkPull here once
// Node.AttachBootstrapper has been called.
func (b *Bootstrapper) HandleFrontierReq(ch *Channel, req FrontierReqBody) {
	count := req.Count
	if count == 0 || count > 1000 {
		count = 1000
	}
	start, err := types.AccountFromHex(req.Start)
	if err != nil {
		return
	}

	tx, err := b.s.BeginRead()
	if err != nil {
		return
	}
	defer tx.Discard()

	// TableAccounts keys sort lexicographically by account bytes, but Iterate's
	// prefix is a strict byte-prefix match, not a range start: a full 32-byte
	// account can only ever prefix-match itself. Scan the whole table in its
	// natural sorted order and skip everything before start instead.
	startBytes := start.Bytes()
	sent := uint32(0)
	_ = tx.Iterate(store.TableAccounts, nil, func(key, value []byte) bool {
		if sent >= count {
			return false
		}
		if bytes.Compare(key, startBytes) < 0 {
			return true
		}
		acc, err := types.AccountFromBytes(key)
		if err != nil {
			return true
		}
		frontier, err := b.l.Frontier(tx, acc)
		if err != nil {
			return true
		}
		_ = ch.Send(MsgFrontierReq, FrontierBody{Account: acc.String(), Frontier: frontier.String()})
		sent++
		return true
	})
}

// HandleBulkPull walks req.Start back toward req.End (or the account's open
// block) via Successor-in-reverse, i.e. by repeatedly looking up the stored
// block's Previous field, and streams the chain oldest-first.
func (b *Bootstrapper) HandleBulkPull(ch *Channel, req BulkPullBody) {
	start, err := types.HashFromHex(req.Start)
	if err != nil {
		return
	}
	var end types.Hash
	if req.End != "" {
		end, err = types.HashFromHex(req.End)
		if err != nil {
			return
		}
	}

	tx, err := b.s.BeginRead()
	if err != nil {
		return
	}
	defer tx.Discard()

	var chain []wireBlock
	cur := start
	for i := 0; i < maxBulkPullBlocks && !cur.IsZero() && cur != end; i++ {
		stored, err := b.l.GetBlock(tx, cur)
		if err != nil {
			break
		}
		chain = append(chain, fromBlock(stored.Block))
		cur = stored.Block.Previous
	}
	// reverse into oldest-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	_ = ch.Send(MsgBulkPull, BulkPullResponseBody{Blocks: chain})
}

// RequestBulkPull asks ch for account's chain from frontier back to end,
// then queues every returned block onto the block processor as a bootstrap
// entry (source BootstrapLegacy, §4.3).
func (b *Bootstrapper) RequestBulkPull(ch *Channel, frontier, end types.Hash) error {
	if err := ch.Send(MsgBulkPull, BulkPullBody{Start: frontier.String(), End: end.String()}); err != nil {
		return err
	}
	msg, err := ch.Receive()
	if err != nil {
		return err
	}
	var resp BulkPullResponseBody
	if err := msg.decode(&resp); err != nil {
		return err
	}
	for i := range resp.Blocks {
		blk, err := resp.Blocks[i].toBlock()
		if err != nil {
			continue
		}
		b.bp.Add(&blockprocessor.Entry{Block: blk, Source: blockprocessor.SourceBootstrapLegacy})
	}
	return nil
}
