package network

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
)

type fakeBlockSource struct {
	entries []*blockprocessor.Entry
}

func (f *fakeBlockSource) Add(e *blockprocessor.Entry) { f.entries = append(f.entries, e) }

type fakeVoteSink struct {
	votes []*vote.Vote
}

func (f *fakeVoteSink) Add(v *vote.Vote, channel uint64) { f.votes = append(f.votes, v) }

func newTestNode(t *testing.T, blocks BlockSource, votes VoteSink) (*Node, *types.KeyPair) {
	t.Helper()
	kp, err := types.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate node id: %v", err)
	}
	n := NewNode(kp, "127.0.0.1:0", nil, blocks, votes, nil, nil)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(n.Stop)
	return n, kp
}

func TestConnectCompletesNodeIDHandshake(t *testing.T) {
	server, serverKP := newTestNode(t, nil, nil)
	client, _ := newTestNode(t, nil, nil)

	ch, err := client.Connect(server.listener.Addr().String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	id, ok := ch.NodeID()
	if !ok {
		t.Fatal("expected the client channel to have a bound node id after handshake")
	}
	if id != serverKP.Public {
		t.Fatalf("bound node id = %s, want %s", id, serverKP.Public)
	}
}

func TestPublishQueuesBlockOnTheServersProcessor(t *testing.T) {
	blocks := &fakeBlockSource{}
	server, _ := newTestNode(t, blocks, nil)
	client, _ := newTestNode(t, nil, nil)

	ch, err := client.Connect(server.listener.Addr().String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	genesisKP, _ := types.GenerateKeyPair()
	blk := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: types.Hash{},
		Representative: genesisKP.Public, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	blk.Sign(genesisKP)
	raw, err := json.Marshal(fromBlock(blk))
	if err != nil {
		t.Fatalf("marshal block: %v", err)
	}
	if err := ch.Send(MsgPublish, PublishBody{Block: raw}); err != nil {
		t.Fatalf("send publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(blocks.entries) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(blocks.entries) != 1 {
		t.Fatalf("server queued %d entries, want 1", len(blocks.entries))
	}
	if blocks.entries[0].Source != blockprocessor.SourceLive {
		t.Fatalf("source = %v, want SourceLive", blocks.entries[0].Source)
	}
}

func TestDuplicatePublishIsDroppedBySecondNode(t *testing.T) {
	blocks := &fakeBlockSource{}
	server, _ := newTestNode(t, blocks, nil)
	client, _ := newTestNode(t, nil, nil)

	ch, err := client.Connect(server.listener.Addr().String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	genesisKP, _ := types.GenerateKeyPair()
	blk := &block.Block{
		Type: block.State, Account: genesisKP.Public, Previous: types.Hash{},
		Representative: genesisKP.Public, Balance: types.AmountFromUint64(1), Link: types.Hash{},
	}
	blk.Sign(genesisKP)
	raw, _ := json.Marshal(fromBlock(blk))

	for i := 0; i < 2; i++ {
		if err := ch.Send(MsgPublish, PublishBody{Block: raw}); err != nil {
			t.Fatalf("send publish #%d: %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for len(blocks.entries) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // let a second delivery land if the filter failed to catch it
	if len(blocks.entries) != 1 {
		t.Fatalf("server queued %d entries, want exactly 1 (duplicate should be dropped)", len(blocks.entries))
	}
}
