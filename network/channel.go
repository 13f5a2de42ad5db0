package network

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nanolattice/nanod/types"
)

// Channel represents a connected remote node, generalising the teacher's
// Peer to carry the node id bound during the handshake and the IP used for
// exclusion/scoring decisions.
type Channel struct {
	ID   string // the remote addr; binding a node id does not change it
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool

	handshakeMu sync.Mutex
	nodeID      types.Account
	hasNodeID   bool
}

// NewChannel wraps an established TCP connection as a Channel.
func NewChannel(id, addr string, conn net.Conn) *Channel {
	return &Channel{ID: id, Addr: addr, conn: conn}
}

// Dial connects to addr and returns a Channel. If tlsCfg is non-nil the
// connection is established over TLS.
func Dial(addr string, tlsCfg *tls.Config) (*Channel, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	return NewChannel(addr, addr, conn), nil
}

// IP returns the channel's remote IP, the unit peer exclusion scores on.
func (c *Channel) IP() string {
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return c.Addr
	}
	return host
}

// BindNodeID records the node id proven by a completed handshake. Returns
// false if a node id is already bound (handshake is not repeatable).
func (c *Channel) BindNodeID(id types.Account) bool {
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	if c.hasNodeID {
		return false
	}
	c.nodeID = id
	c.hasNodeID = true
	return true
}

func (c *Channel) NodeID() (types.Account, bool) {
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	return c.nodeID, c.hasNodeID
}

// Send writes a header-framed message to the channel.
func (c *Channel) Send(typ MsgType, body any) error {
	msg, err := newMessage(typ, body)
	return c.sendMessage(msg, err)
}

func (c *Channel) sendMessage(msg Message, buildErr error) error {
	if buildErr != nil {
		return buildErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("network: channel %s closed", c.ID)
	}
	header := msg.Header.encode()
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(msg.Payload)
	return err
}

// Receive reads the next header-framed message. A 30-second read deadline
// prevents a stalled peer from blocking a reader goroutine indefinitely.
func (c *Channel) Receive() (Message, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var buf [headerSize]byte
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		return Message{}, err
	}
	h, err := decodeHeader(buf[:])
	if err != nil {
		return Message{}, err
	}
	payload := make([]byte, h.Extensions)
	if len(payload) > 0 {
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return Message{}, err
		}
	}
	return Message{Header: h, Payload: payload}, nil
}

// Close terminates the underlying connection, idempotently.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}
