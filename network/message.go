// Package network implements peer-to-peer transport (§4.10): wire framing,
// the duplicate filter, peer exclusion, the peer cache, and the node-id
// handshake, generalising the teacher's length-prefixed JSON peer framing to
// the wire's fixed binary header.
package network

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// MsgType labels a network message.
type MsgType byte

const (
	MsgKeepalive MsgType = iota
	MsgPublish
	MsgConfirmReq
	MsgConfirmAck
	MsgBulkPull
	MsgBulkPullAccount
	MsgBulkPush
	MsgFrontierReq
	MsgNodeIDHandshake
	MsgTelemetryReq
	MsgTelemetryAck
	MsgAscPullReq
	MsgAscPullAck
)

func (t MsgType) String() string {
	switch t {
	case MsgKeepalive:
		return "keepalive"
	case MsgPublish:
		return "publish"
	case MsgConfirmReq:
		return "confirm_req"
	case MsgConfirmAck:
		return "confirm_ack"
	case MsgBulkPull:
		return "bulk_pull"
	case MsgBulkPullAccount:
		return "bulk_pull_account"
	case MsgBulkPush:
		return "bulk_push"
	case MsgFrontierReq:
		return "frontier_req"
	case MsgNodeIDHandshake:
		return "node_id_handshake"
	case MsgTelemetryReq:
		return "telemetry_req"
	case MsgTelemetryAck:
		return "telemetry_ack"
	case MsgAscPullReq:
		return "asc_pull_req"
	case MsgAscPullAck:
		return "asc_pull_ack"
	default:
		return "unknown"
	}
}

// headerSize is the fixed 8-byte wire header: network id (2), version max,
// version using, version min, message type, extensions (2 LE).
const headerSize = 8

// maxMessageSize bounds the payload carried after the header.
const maxMessageSize = 65 * 1024

// networkID distinguishes this protocol's wire format from unrelated traffic
// sharing the same port range. Arbitrary but fixed for this implementation.
const networkID uint16 = 0x5a43

const (
	versionMax   = 20
	versionUsing = 20
	versionMin   = 18
)

// Header is the 8-byte frame prefix on every message.
type Header struct {
	NetworkID    uint16
	VersionMax   uint8
	VersionUsing uint8
	VersionMin   uint8
	Type         MsgType
	Extensions   uint16 // payload length for this implementation
}

func newHeader(typ MsgType, payloadLen int) (Header, error) {
	if payloadLen > maxMessageSize || payloadLen > 0xffff {
		return Header{}, fmt.Errorf("network: payload of %d bytes exceeds the wire limit", payloadLen)
	}
	return Header{
		NetworkID: networkID, VersionMax: versionMax, VersionUsing: versionUsing, VersionMin: versionMin,
		Type: typ, Extensions: uint16(payloadLen),
	}, nil
}

func (h Header) encode() [headerSize]byte {
	var buf [headerSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.NetworkID)
	buf[2] = h.VersionMax
	buf[3] = h.VersionUsing
	buf[4] = h.VersionMin
	buf[5] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[6:8], h.Extensions)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("network: short header (%d bytes)", len(buf))
	}
	h := Header{
		NetworkID:    binary.BigEndian.Uint16(buf[0:2]),
		VersionMax:   buf[2],
		VersionUsing: buf[3],
		VersionMin:   buf[4],
		Type:         MsgType(buf[5]),
		Extensions:   binary.LittleEndian.Uint16(buf[6:8]),
	}
	if h.NetworkID != networkID {
		return Header{}, fmt.Errorf("network: foreign network id %#x", h.NetworkID)
	}
	return h, nil
}

// Message pairs a decoded header with its still-encoded JSON payload.
type Message struct {
	Header  Header
	Payload []byte
}

func newMessage(typ MsgType, body any) (Message, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("network: marshal %s payload: %w", typ, err)
	}
	h, err := newHeader(typ, len(payload))
	if err != nil {
		return Message{}, err
	}
	return Message{Header: h, Payload: payload}, nil
}

func (m Message) decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// KeepaliveBody lists the sender's known peer addresses.
type KeepaliveBody struct {
	Peers []string `json:"peers"`
}

// PublishBody carries one wire-encoded block, in the same hex shape the RPC
// layer uses so the two codecs share one mental model.
type PublishBody struct {
	Block json.RawMessage `json:"block"`
}

// ConfirmReqBody lists up to 12 (hash, root) pairs a peer is asked to vote on.
type ConfirmReqBody struct {
	Roots []HashRootPair `json:"roots"`
}

// HashRootPair is one block identified both by hash and by election root.
type HashRootPair struct {
	Hash string `json:"hash"`
	Root string `json:"root"`
}

// MaxConfirmReqRoots bounds a single ConfirmReq (§4.10).
const MaxConfirmReqRoots = 12

// ConfirmAckBody carries one signed vote.
type ConfirmAckBody struct {
	Account   string   `json:"account"`
	Signature string   `json:"signature"`
	Timestamp uint64   `json:"timestamp"`
	Hashes    []string `json:"hashes"`
}

// NodeIDHandshakeQuery is the initiator's opening message: a random cookie
// the responder must sign to prove possession of its node id key.
type NodeIDHandshakeQuery struct {
	Cookie string `json:"cookie"`
}

// NodeIDHandshakeResponse answers a query with the responder's node id
// account and a signature over the cookie.
type NodeIDHandshakeResponse struct {
	NodeID    string `json:"node_id"`
	Signature string `json:"signature"`
}

// TelemetryAckBody is a minimal telemetry snapshot; fields beyond block
// count, active elections and peer count are a named non-goal of the RPC/WS surface and
// are not reproduced here either.
type TelemetryAckBody struct {
	BlockCount     uint64 `json:"block_count"`
	ActiveElection uint32 `json:"active_elections"`
	PeerCount      uint32 `json:"peer_count"`
}
