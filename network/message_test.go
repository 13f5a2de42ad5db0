package network

import "testing"

func TestHeaderRoundTripsThroughEncodeDecode(t *testing.T) {
	h, err := newHeader(MsgPublish, 123)
	if err != nil {
		t.Fatalf("newHeader: %v", err)
	}
	buf := h.encode()
	got, err := decodeHeader(buf[:])
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("decoded header = %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsForeignNetworkID(t *testing.T) {
	h, _ := newHeader(MsgKeepalive, 0)
	buf := h.encode()
	buf[0] ^= 0xff
	if _, err := decodeHeader(buf[:]); err == nil {
		t.Fatal("expected an error for a mismatched network id")
	}
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	if _, err := decodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a short header")
	}
}

func TestNewMessageRejectsOversizePayload(t *testing.T) {
	big := make([]byte, maxMessageSize+1)
	_, err := newHeader(MsgPublish, len(big))
	if err == nil {
		t.Fatal("expected an error for an oversize payload")
	}
}

func TestMessageDecodeRoundTripsBody(t *testing.T) {
	in := KeepaliveBody{Peers: []string{"10.0.0.1:7075", "10.0.0.2:7075"}}
	msg, err := newMessage(MsgKeepalive, in)
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}
	var out KeepaliveBody
	if err := msg.decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Peers) != 2 || out.Peers[0] != in.Peers[0] {
		t.Fatalf("decoded body = %+v, want %+v", out, in)
	}
}
