package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"ringkv/internal/addr"
)

// Field numbers of the membership payloads.
const (
	fieldID        protowire.Number = 1
	fieldPort      protowire.Number = 2
	fieldHeartbeat protowire.Number = 3
	fieldTimestamp protowire.Number = 4

	fieldCount   protowire.Number = 1
	fieldEntries protowire.Number = 2
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSigned(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendAddress(b []byte, a addr.Address) []byte {
	b = appendVarint(b, fieldID, uint64(a.ID))
	return appendVarint(b, fieldPort, uint64(a.Port))
}

func encodeAddressCounter(a addr.Address, heartbeat int64) []byte {
	b := appendAddress(nil, a)
	return appendSigned(b, fieldHeartbeat, heartbeat)
}

func encodeJoinReply(m JoinReply) []byte {
	b := appendVarint(nil, fieldCount, uint64(len(m.Entries)))
	for _, e := range m.Entries {
		entry := appendAddress(nil, e.Address)
		entry = appendSigned(entry, fieldHeartbeat, e.Heartbeat)
		entry = appendSigned(entry, fieldTimestamp, e.Timestamp)

		b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// fieldVisitor receives each decoded field; raw is set for length-delimited
// fields, v for varints.
type fieldVisitor func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error

func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := visit(num, typ, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := visit(num, typ, 0, raw); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// addressCounter collects the id/port/heartbeat/timestamp fields shared by
// every membership payload.
type addressCounter struct {
	address   addr.Address
	heartbeat int64
	timestamp int64
	seen      uint8
}

const (
	seenID uint8 = 1 << iota
	seenPort
	seenHeartbeat
	seenTimestamp
)

func (ac *addressCounter) visit(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
	if typ != protowire.VarintType {
		return nil
	}
	switch num {
	case fieldID:
		if v > math.MaxUint32 {
			return fmt.Errorf("id %d out of range", v)
		}
		ac.address.ID = uint32(v)
		ac.seen |= seenID
	case fieldPort:
		if v > math.MaxUint16 {
			return fmt.Errorf("port %d out of range", v)
		}
		ac.address.Port = uint16(v)
		ac.seen |= seenPort
	case fieldHeartbeat:
		ac.heartbeat = protowire.DecodeZigZag(v)
		ac.seen |= seenHeartbeat
	case fieldTimestamp:
		ac.timestamp = protowire.DecodeZigZag(v)
		ac.seen |= seenTimestamp
	}
	return nil
}

func (ac *addressCounter) require(mask uint8) error {
	if ac.seen&mask != mask {
		return fmt.Errorf("payload too short: missing fields (have %04b, need %04b)", ac.seen, mask)
	}
	return nil
}

func decodeAddressCounter(body []byte) (addr.Address, int64, error) {
	var ac addressCounter
	if err := walkFields(body, ac.visit); err != nil {
		return addr.Address{}, 0, err
	}
	if err := ac.require(seenID | seenPort | seenHeartbeat); err != nil {
		return addr.Address{}, 0, err
	}
	return ac.address, ac.heartbeat, nil
}

func decodeJoinReply(body []byte) (JoinReply, error) {
	var (
		count    uint64
		hasCount bool
		entries  []Entry
	)

	err := walkFields(body, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldCount && typ == protowire.VarintType:
			count = v
			hasCount = true
		case num == fieldEntries && typ == protowire.BytesType:
			var ac addressCounter
			if err := walkFields(raw, ac.visit); err != nil {
				return fmt.Errorf("entry %d: %w", len(entries), err)
			}
			if err := ac.require(seenID | seenPort | seenHeartbeat | seenTimestamp); err != nil {
				return fmt.Errorf("entry %d: %w", len(entries), err)
			}
			entries = append(entries, Entry{
				Address:   ac.address,
				Heartbeat: ac.heartbeat,
				Timestamp: ac.timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return JoinReply{}, err
	}

	if !hasCount {
		return JoinReply{}, fmt.Errorf("payload too short: missing entry count")
	}
	if count != uint64(len(entries)) {
		return JoinReply{}, fmt.Errorf("entry count %d does not match %d entries", count, len(entries))
	}

	return JoinReply{Entries: entries}, nil
}
