package transport

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"ringkv/internal/addr"
)

// envelope is the request message of the Deliver call.
type envelope struct {
	From addr.Address
	Data []byte
}

// ack is the empty response of the Deliver call.
type ack struct{}

// envelopeCodec encodes envelope and ack with the protobuf wire format, which
// avoids generated message types for a two-message service.
type envelopeCodec struct{}

func (envelopeCodec) Name() string { return "ringkv-envelope" }

func (envelopeCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *envelope:
		b := protowire.AppendTag(nil, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.From.ID))
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.From.Port))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		return protowire.AppendBytes(b, m.Data), nil
	case *ack:
		return nil, nil
	default:
		return nil, fmt.Errorf("envelope codec: cannot marshal %T", v)
	}
}

func (envelopeCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *envelope:
		return unmarshalEnvelope(data, m)
	case *ack:
		return nil
	default:
		return fmt.Errorf("envelope codec: cannot unmarshal into %T", v)
	}
}

func unmarshalEnvelope(b []byte, m *envelope) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == 1 || num == 2):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if num == 1 {
				if v > math.MaxUint32 {
					return fmt.Errorf("envelope id %d out of range", v)
				}
				m.From.ID = uint32(v)
			} else {
				if v > math.MaxUint16 {
					return fmt.Errorf("envelope port %d out of range", v)
				}
				m.From.Port = uint16(v)
			}
		case typ == protowire.BytesType && num == 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			m.Data = append([]byte(nil), v...)
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
