package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is returned for frames that are too short or whose
	// body does not decode.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnknownKind is returned for frames with an unrecognized kind tag.
	ErrUnknownKind = errors.New("unknown message kind")
)

// Encode frames m: one kind byte followed by the body.
func Encode(m Message) ([]byte, error) {
	var body []byte
	switch v := m.(type) {
	case JoinRequest:
		body = encodeAddressCounter(v.Address, v.Heartbeat)
	case Heartbeat:
		body = encodeAddressCounter(v.Address, v.Heartbeat)
	case JoinReply:
		body = encodeJoinReply(v)
	case Request:
		if _, ok := parseOp(v.Op.String()); !ok {
			return nil, fmt.Errorf("encode request: invalid op %d", v.Op)
		}
		body = []byte(requestRecord(v).String())
	case Reply:
		body = []byte(replyRecord(v).String())
	case ReadReply:
		body = []byte(readReplyRecord(v).String())
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}

	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(m.Kind()))
	return append(frame, body...), nil
}

// MustEncode is like Encode but panics on error. Every well-formed message
// value encodes, so callers building messages locally use it.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 1 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocolViolation)
	}

	kind, body := Kind(frame[0]), frame[1:]

	var (
		m   Message
		err error
	)
	switch kind {
	case KindJoinRequest:
		a, hb, derr := decodeAddressCounter(body)
		m, err = JoinRequest{Address: a, Heartbeat: hb}, derr
	case KindHeartbeat:
		a, hb, derr := decodeAddressCounter(body)
		m, err = Heartbeat{Address: a, Heartbeat: hb}, derr
	case KindJoinReply:
		m, err = decodeJoinReply(body)
	case KindRequest:
		m, err = decodeRequest(body)
	case KindReply:
		m, err = decodeReply(body)
	case KindReadReply:
		m, err = decodeReadReply(body)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, frame[0])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocolViolation, kind, err)
	}
	return m, nil
}
