package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"ringkv/internal/addr"
	"ringkv/internal/wire"
)

var (
	// ErrUnreachable is returned when the destination is not known to the
	// transport.
	ErrUnreachable = errors.New("destination unreachable")

	// ErrClosed is returned by Send after the transport was closed.
	ErrClosed = errors.New("transport closed")
)

// Packet is one datagram between two nodes.
type Packet struct {
	From addr.Address
	To   addr.Address
	Data []byte
}

// Transport moves opaque byte buffers between node addresses. Delivery is
// unreliable: packets may be dropped, duplicated or reordered.
type Transport interface {
	// Send queues data for delivery. A nil error does not imply delivery.
	Send(from, to addr.Address, data []byte) error
	// Receive returns every packet that arrived for at since the last call.
	Receive(at addr.Address) []Packet
}

// headerLen is the size of the sender prefix stored with each queued buffer.
const headerLen = 6

func frame(from addr.Address, data []byte) []byte {
	buf := make([]byte, headerLen+len(data))
	binary.BigEndian.PutUint32(buf[0:4], from.ID)
	binary.BigEndian.PutUint16(buf[4:6], from.Port)
	copy(buf[headerLen:], data)
	return buf
}

func unframe(to addr.Address, buf []byte) (Packet, error) {
	if len(buf) < headerLen {
		return Packet{}, fmt.Errorf("queued buffer of %d bytes has no sender header", len(buf))
	}
	return Packet{
		From: addr.New(binary.BigEndian.Uint32(buf[0:4]), binary.BigEndian.Uint16(buf[4:6])),
		To:   to,
		Data: buf[headerLen:],
	}, nil
}

// kindLabel names the message kind of a frame for metrics.
func kindLabel(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	return wire.Kind(data[0]).String()
}
