package network

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
)

type nodeLogger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// DefaultMaxPeers bounds simultaneous channels.
const DefaultMaxPeers = 50

// cacheInterval is how often the peer cache snapshots live channels.
const cacheInterval = 5 * time.Minute

// epochAdvanceInterval is how often the duplicate filter's epoch counter
// advances, ageing out stale digests without an explicit table scan.
const epochAdvanceInterval = time.Minute

// BlockSource is the subset of blockprocessor.Processor the node needs to
// hand off a freshly published block.
type BlockSource interface {
	Add(e *blockprocessor.Entry)
}

// VoteSink is the subset of vote.Processor the node needs to hand off an
// incoming ConfirmAck.
type VoteSink interface {
	Add(v *vote.Vote, channel uint64)
}

// RequestAnswerer is the subset of vote.Aggregator the node needs to answer
// an incoming ConfirmReq.
type RequestAnswerer interface {
	Answer(items []vote.RequestItem) []*vote.Vote
}

// Node listens for incoming channels and manages outgoing connections,
// dispatching wire messages into the block processor, vote pipeline, and
// handshake/exclusion/dedup machinery (§4.10).
type Node struct {
	nodeID     *types.KeyPair
	listenAddr string
	tlsConfig  *tls.Config // nil -> plain TCP
	maxPeers   int

	blocks    BlockSource
	votes     VoteSink
	requests  RequestAnswerer
	bootstrap *Bootstrapper
	filter    *DuplicateFilter
	exclusion *PeerExclusion
	cache     *PeerCache
	log       nodeLogger

	mu       sync.RWMutex
	channels map[string]*Channel // by remote addr
	byNodeID map[types.Account]string

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewNode creates a Node bound to nodeID's key pair, which proves identity
// during the node-id handshake.
func NewNode(nodeID *types.KeyPair, listenAddr string, tlsCfg *tls.Config, blocks BlockSource, votes VoteSink, requests RequestAnswerer, cache *PeerCache) *Node {
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		blocks:     blocks,
		votes:      votes,
		requests:   requests,
		filter:     NewDuplicateFilter(DefaultFilterSize),
		exclusion:  NewPeerExclusion(),
		cache:      cache,
		log:        nlog.For("network"),
		channels:   make(map[string]*Channel),
		byNodeID:   make(map[types.Account]string),
		stopCh:     make(chan struct{}),
	}
}

// Start begins accepting connections and the background cache/epoch loop.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("network: listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	n.wg.Add(2)
	go n.acceptLoop()
	go n.backgroundLoop()
	return nil
}

// Stop shuts down the listener, every channel, and the background loop.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	channels := make([]*Channel, 0, len(n.channels))
	for _, c := range n.channels {
		channels = append(channels, c)
	}
	n.mu.Unlock()
	for _, c := range channels {
		c.Close()
	}
	n.wg.Wait()
}

// Connect dials addr, completes the node-id handshake as initiator, and
// registers the channel for reading and broadcast.
func (n *Node) Connect(addr string) (*Channel, error) {
	ch, err := n.DialForBootstrap(addr)
	if err != nil {
		return nil, err
	}
	n.register(ch)
	n.wg.Add(1)
	go n.readLoop(ch)
	return ch, nil
}

// DialForBootstrap dials addr and completes the node-id handshake but, unlike
// Connect, does not register the channel or start a dispatch reader: a
// bootstrap session drives its own synchronous request/response exchange
// over the channel (Bootstrapper.RequestBulkPull and friends), which would
// race with the node's dispatch loop if both read the same connection.
func (n *Node) DialForBootstrap(addr string) (*Channel, error) {
	ch, err := Dial(addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	if err := n.initiateHandshake(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// Broadcast sends a message built from typ/body to every connected channel.
func (n *Node) Broadcast(typ MsgType, body any) {
	msg, err := newMessage(typ, body)
	if err != nil {
		n.log.Warnf("build %s broadcast: %v", typ, err)
		return
	}
	n.mu.RLock()
	channels := make([]*Channel, 0, len(n.channels))
	for _, c := range n.channels {
		channels = append(channels, c)
	}
	n.mu.RUnlock()
	for _, c := range channels {
		if err := c.sendMessage(msg, nil); err != nil {
			n.log.Warnf("broadcast to %s: %v", c.ID, err)
		}
	}
}

// BroadcastConfirmReq satisfies election.Broadcaster: it asks every
// connected channel to vote on (hash, root).
func (n *Node) BroadcastConfirmReq(root, hash types.Hash) {
	n.Broadcast(MsgConfirmReq, ConfirmReqBody{Roots: []HashRootPair{{Hash: hash.String(), Root: root.String()}}})
}

// BroadcastBlock publishes blk to every connected channel.
func (n *Node) BroadcastBlock(blk *block.Block) {
	raw, err := json.Marshal(fromBlock(blk))
	if err != nil {
		n.log.Warnf("marshal block for publish: %v", err)
		return
	}
	n.Broadcast(MsgPublish, PublishBody{Block: raw})
}

func (n *Node) register(ch *Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[ch.Addr] = ch
}

func (n *Node) unregister(ch *Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.channels, ch.Addr)
	if id, ok := ch.NodeID(); ok {
		if addr, ok := n.byNodeID[id]; ok && addr == ch.Addr {
			delete(n.byNodeID, id)
		}
	}
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Warnf("accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		addr := conn.RemoteAddr().String()
		ip, _, _ := net.SplitHostPort(addr)
		if n.exclusion.IsExcluded(ip) {
			conn.Close()
			continue
		}

		n.mu.RLock()
		count := len(n.channels)
		n.mu.RUnlock()
		if count >= n.maxPeers {
			n.log.Warnf("max peers (%d) reached, rejecting %s", n.maxPeers, addr)
			conn.Close()
			continue
		}

		ch := NewChannel(addr, addr, conn)
		n.wg.Add(1)
		go n.acceptHandshake(ch)
	}
}

// acceptHandshake completes the responder side of the node-id handshake
// before the channel is registered for general message dispatch.
func (n *Node) acceptHandshake(ch *Channel) {
	defer n.wg.Done()
	if err := n.respondHandshake(ch); err != nil {
		n.log.Warnf("handshake with %s failed: %v", ch.Addr, err)
		ch.Close()
		return
	}
	n.register(ch)
	n.wg.Add(1)
	go n.readLoop(ch)
}

// initiateHandshake sends a random cookie and verifies the peer's signed
// reply proves ownership of the claimed node id.
func (n *Node) initiateHandshake(ch *Channel) error {
	var cookie [32]byte
	if _, err := rand.Read(cookie[:]); err != nil {
		return fmt.Errorf("network: generate handshake cookie: %w", err)
	}
	if err := ch.Send(MsgNodeIDHandshake, NodeIDHandshakeQuery{Cookie: hex.EncodeToString(cookie[:])}); err != nil {
		return err
	}
	msg, err := ch.Receive()
	if err != nil {
		return err
	}
	if msg.Header.Type != MsgNodeIDHandshake {
		return fmt.Errorf("network: expected handshake response, got %s", msg.Header.Type)
	}
	var resp NodeIDHandshakeResponse
	if err := msg.decode(&resp); err != nil {
		return err
	}
	return n.acceptHandshakeResponse(ch, cookie[:], resp)
}

// respondHandshake waits for the initiator's cookie and signs it with this
// node's id key. The initiator proves no node id on this side, so an
// inbound channel is never bound to a node id and two simultaneous inbound
// channels from the same remote node are not detected or refused.
func (n *Node) respondHandshake(ch *Channel) error {
	msg, err := ch.Receive()
	if err != nil {
		return err
	}
	if msg.Header.Type != MsgNodeIDHandshake {
		return fmt.Errorf("network: expected handshake query, got %s", msg.Header.Type)
	}
	var query NodeIDHandshakeQuery
	if err := msg.decode(&query); err != nil {
		return err
	}
	cookie, err := hex.DecodeString(query.Cookie)
	if err != nil {
		return fmt.Errorf("network: malformed handshake cookie: %w", err)
	}
	sig := n.nodeID.Sign(types.BlockHash(cookie))
	resp := NodeIDHandshakeResponse{NodeID: n.nodeID.Public.String(), Signature: hex.EncodeToString(sig.Bytes())}
	return ch.Send(MsgNodeIDHandshake, resp)
}

func (n *Node) acceptHandshakeResponse(ch *Channel, cookie []byte, resp NodeIDHandshakeResponse) error {
	peerID, err := types.AccountFromHex(resp.NodeID)
	if err != nil {
		return fmt.Errorf("network: malformed peer node id: %w", err)
	}
	sig, err := types.SignatureFromHex(resp.Signature)
	if err != nil {
		return fmt.Errorf("network: malformed handshake signature: %w", err)
	}
	if !types.Verify(peerID, types.BlockHash(cookie), sig) {
		return fmt.Errorf("network: handshake signature does not verify")
	}
	return n.bindNodeID(ch, peerID)
}

func (n *Node) bindNodeID(ch *Channel, peerID types.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.byNodeID[peerID]; ok && existing != ch.Addr {
		return fmt.Errorf("network: node id %s already bound to a channel", peerID)
	}
	if !ch.BindNodeID(peerID) {
		return fmt.Errorf("network: channel already bound to a node id")
	}
	n.byNodeID[peerID] = ch.Addr
	return nil
}

func (n *Node) readLoop(ch *Channel) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Warnf("readLoop panic from %s: %v", ch.ID, r)
		}
		ch.Close()
		n.unregister(ch)
		n.wg.Done()
	}()
	for {
		msg, err := ch.Receive()
		if err != nil {
			return
		}
		n.dispatch(ch, msg)
	}
}

func (n *Node) dispatch(ch *Channel, msg Message) {
	switch msg.Header.Type {
	case MsgKeepalive:
		n.handleKeepalive(ch, msg)
	case MsgPublish:
		n.handlePublish(ch, msg)
	case MsgConfirmReq:
		n.handleConfirmReq(ch, msg)
	case MsgConfirmAck:
		n.handleConfirmAck(ch, msg)
	case MsgNodeIDHandshake:
		// A second handshake message on an already-bound channel is ignored:
		// the protocol's handshake is strictly the first exchange.
	case MsgFrontierReq:
		n.handleFrontierReq(ch, msg)
	case MsgBulkPull:
		n.handleBulkPull(ch, msg)
	case MsgTelemetryReq, MsgTelemetryAck, MsgBulkPullAccount, MsgBulkPush, MsgAscPullReq, MsgAscPullAck:
		// Recognised but otherwise unhandled: telemetry beyond the RPC/WS
		// surface, bulk_pull_account, bulk_push, and the asc_pull
		// request/response pair are a deliberately unimplemented slice of
		// the bootstrap surface.
	default:
		n.exclusion.PeerMisbehaved(ch.IP())
	}
}

// handleFrontierReq answers only if this node has a bootstrapper attached;
// a response message (FrontierBody) arriving here instead of a request is
// silently ignored, since this node never issues FrontierReq on a
// node-managed channel (bootstrap requests use a dedicated dialed channel,
// §bootstrap).
func (n *Node) handleFrontierReq(ch *Channel, msg Message) {
	if n.bootstrap == nil {
		return
	}
	var req FrontierReqBody
	if err := msg.decode(&req); err != nil || req.Start == "" {
		return
	}
	n.bootstrap.HandleFrontierReq(ch, req)
}

func (n *Node) handleBulkPull(ch *Channel, msg Message) {
	if n.bootstrap == nil {
		return
	}
	var req BulkPullBody
	if err := msg.decode(&req); err != nil || req.Start == "" {
		return
	}
	n.bootstrap.HandleBulkPull(ch, req)
}

// AttachBootstrapper lets this node answer FrontierReq/BulkPull requests
// from its ledger. Outgoing bootstrap requests use a dedicated dialed
// Channel and the Bootstrapper's Request* methods directly, not the node's
// managed-channel dispatch loop.
func (n *Node) AttachBootstrapper(b *Bootstrapper) {
	n.bootstrap = b
}

func (n *Node) handleKeepalive(ch *Channel, msg Message) {
	var body KeepaliveBody
	if err := msg.decode(&body); err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	if n.cache != nil {
		_ = n.cache.Snapshot(body.Peers)
	}
}

// handlePublish applies the duplicate filter before ever touching the
// block processor (§4.10: "On receipt the node computes a ... digest ...
// if the duplicate filter already holds the digest, the message is
// dropped").
func (n *Node) handlePublish(ch *Channel, msg Message) {
	if _, _, existed := n.filter.Apply(msg.Payload); existed {
		return
	}
	var body PublishBody
	if err := msg.decode(&body); err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	var blk wireBlock
	if err := json.Unmarshal(body.Block, &blk); err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	b, err := blk.toBlock()
	if err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	if n.blocks != nil {
		n.blocks.Add(&blockprocessor.Entry{Block: b, Source: blockprocessor.SourceLive})
	}
}

func (n *Node) handleConfirmReq(ch *Channel, msg Message) {
	var body ConfirmReqBody
	if err := msg.decode(&body); err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	if len(body.Roots) > MaxConfirmReqRoots {
		body.Roots = body.Roots[:MaxConfirmReqRoots]
	}
	if n.requests == nil {
		return
	}
	items := make([]vote.RequestItem, 0, len(body.Roots))
	for _, pair := range body.Roots {
		hash, err := types.HashFromHex(pair.Hash)
		if err != nil {
			continue
		}
		root, err := types.HashFromHex(pair.Root)
		if err != nil {
			continue
		}
		items = append(items, vote.RequestItem{Hash: hash, Root: root})
	}
	for _, v := range n.requests.Answer(items) {
		ack := ConfirmAckBody{
			Account: v.Account.String(), Signature: hex.EncodeToString(v.Signature.Bytes()), Timestamp: v.Timestamp,
		}
		for _, h := range v.Hashes {
			ack.Hashes = append(ack.Hashes, h.String())
		}
		_ = ch.Send(MsgConfirmAck, ack)
	}
}

// handleConfirmAck also runs through the duplicate filter (§4.10).
func (n *Node) handleConfirmAck(ch *Channel, msg Message) {
	if _, _, existed := n.filter.Apply(msg.Payload); existed {
		return
	}
	var body ConfirmAckBody
	if err := msg.decode(&body); err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	account, err := types.AccountFromHex(body.Account)
	if err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	sig, err := types.SignatureFromHex(body.Signature)
	if err != nil {
		n.exclusion.PeerMisbehaved(ch.IP())
		return
	}
	hashes := make([]types.Hash, 0, len(body.Hashes))
	for _, hx := range body.Hashes {
		h, err := types.HashFromHex(hx)
		if err != nil {
			n.exclusion.PeerMisbehaved(ch.IP())
			return
		}
		hashes = append(hashes, h)
	}
	v := &vote.Vote{Account: account, Signature: sig, Timestamp: body.Timestamp, Hashes: hashes}
	if n.votes != nil {
		n.votes.Add(v, channelID(ch))
	}
}

func channelID(ch *Channel) uint64 {
	var id uint64
	for _, b := range []byte(ch.Addr) {
		id = id*131 + uint64(b)
	}
	return id
}

func (n *Node) backgroundLoop() {
	defer n.wg.Done()
	cacheTicker := time.NewTicker(cacheInterval)
	defer cacheTicker.Stop()
	epochTicker := time.NewTicker(epochAdvanceInterval)
	defer epochTicker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-epochTicker.C:
			n.filter.Advance(1)
		case <-cacheTicker.C:
			if n.cache == nil {
				continue
			}
			n.mu.RLock()
			addrs := make([]string, 0, len(n.channels))
			for addr := range n.channels {
				addrs = append(addrs, addr)
			}
			n.mu.RUnlock()
			if err := n.cache.Snapshot(addrs); err != nil {
				n.log.Warnf("peer cache snapshot: %v", err)
			}
		}
	}
}
