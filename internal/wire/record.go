package wire

import (
	"fmt"
	"strconv"
	"strings"

	"ringkv/internal/addr"
)

// Separator joins the fields of a replication record.
const Separator = "\x1f"

const recordFields = 7

// Record tags that are not operations.
const (
	TagReply     = "REPLY"
	TagReadReply = "READREPLY"
)

// Record is the text form of a replication message: txID, origin, tag, key,
// value, role and success, in that order. Optional fields that are not set are
// written as empty strings.
type Record struct {
	TxID   int64
	Origin addr.Address
	Tag    string

	Key    string
	HasKey bool

	Value    string
	HasValue bool

	Role Role

	Success    bool
	HasSuccess bool
}

// String serializes the record.
func (r Record) String() string {
	fields := make([]string, recordFields)
	fields[0] = strconv.FormatInt(r.TxID, 10)
	fields[1] = r.Origin.String()
	fields[2] = r.Tag
	if r.HasKey {
		fields[3] = strconv.Quote(r.Key)
	}
	if r.HasValue {
		fields[4] = strconv.Quote(r.Value)
	}
	fields[5] = r.Role.String()
	if r.HasSuccess {
		fields[6] = strconv.FormatBool(r.Success)
	}
	return strings.Join(fields, Separator)
}

// ParseRecord parses the output of Record.String.
func ParseRecord(s string) (Record, error) {
	fields := strings.Split(s, Separator)
	if len(fields) != recordFields {
		return Record{}, fmt.Errorf("record has %d fields, want %d", len(fields), recordFields)
	}

	var (
		r   Record
		err error
	)

	r.TxID, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("record tx id: %w", err)
	}

	r.Origin, err = addr.Parse(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("record origin: %w", err)
	}

	r.Tag = fields[2]
	if r.Tag == "" {
		return Record{}, fmt.Errorf("record tag is empty")
	}

	if fields[3] != "" {
		r.Key, err = strconv.Unquote(fields[3])
		if err != nil {
			return Record{}, fmt.Errorf("record key: %w", err)
		}
		r.HasKey = true
	}

	if fields[4] != "" {
		r.Value, err = strconv.Unquote(fields[4])
		if err != nil {
			return Record{}, fmt.Errorf("record value: %w", err)
		}
		r.HasValue = true
	}

	r.Role, err = parseRole(fields[5])
	if err != nil {
		return Record{}, err
	}

	if fields[6] != "" {
		r.Success, err = strconv.ParseBool(fields[6])
		if err != nil {
			return Record{}, fmt.Errorf("record success: %w", err)
		}
		r.HasSuccess = true
	}

	return r, nil
}

func parseRole(s string) (Role, error) {
	switch s {
	case "":
		return RoleNone, nil
	case "PRIMARY":
		return RolePrimary, nil
	case "SECONDARY":
		return RoleSecondary, nil
	case "TERTIARY":
		return RoleTertiary, nil
	default:
		return RoleNone, fmt.Errorf("record role %q unknown", s)
	}
}

func parseOp(tag string) (Op, bool) {
	for _, op := range []Op{OpCreate, OpRead, OpUpdate, OpDelete} {
		if op.String() == tag {
			return op, true
		}
	}
	return 0, false
}

func requestRecord(m Request) Record {
	r := Record{
		TxID:   m.TxID,
		Origin: m.Origin,
		Tag:    m.Op.String(),
		Key:    m.Key,
		HasKey: true,
		Role:   m.Role,
	}
	if m.Op.CarriesValue() {
		r.Value = m.Value
		r.HasValue = true
	}
	return r
}

func replyRecord(m Reply) Record {
	return Record{
		TxID:       m.TxID,
		Origin:     m.Origin,
		Tag:        TagReply,
		Success:    m.Success,
		HasSuccess: true,
	}
}

func readReplyRecord(m ReadReply) Record {
	return Record{
		TxID:     m.TxID,
		Origin:   m.Origin,
		Tag:      TagReadReply,
		Value:    m.Value,
		HasValue: true,
	}
}

func decodeRequest(body []byte) (Request, error) {
	r, err := ParseRecord(string(body))
	if err != nil {
		return Request{}, err
	}
	op, ok := parseOp(r.Tag)
	if !ok {
		return Request{}, fmt.Errorf("request tag %q is not an operation", r.Tag)
	}
	if !r.HasKey {
		return Request{}, fmt.Errorf("request has no key")
	}
	if op.CarriesValue() && !r.HasValue {
		return Request{}, fmt.Errorf("%s request has no value", op)
	}
	return Request{
		TxID:   r.TxID,
		Origin: r.Origin,
		Op:     op,
		Role:   r.Role,
		Key:    r.Key,
		Value:  r.Value,
	}, nil
}

func decodeReply(body []byte) (Reply, error) {
	r, err := ParseRecord(string(body))
	if err != nil {
		return Reply{}, err
	}
	if r.Tag != TagReply {
		return Reply{}, fmt.Errorf("reply tag is %q", r.Tag)
	}
	if !r.HasSuccess {
		return Reply{}, fmt.Errorf("reply has no success flag")
	}
	return Reply{TxID: r.TxID, Origin: r.Origin, Success: r.Success}, nil
}

func decodeReadReply(body []byte) (ReadReply, error) {
	r, err := ParseRecord(string(body))
	if err != nil {
		return ReadReply{}, err
	}
	if r.Tag != TagReadReply {
		return ReadReply{}, fmt.Errorf("read reply tag is %q", r.Tag)
	}
	return ReadReply{TxID: r.TxID, Origin: r.Origin, Value: r.Value}, nil
}
