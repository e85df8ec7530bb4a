package wire

import (
	"ringkv/internal/addr"
)

// Kind is the message-type tag carried in the first byte of every frame.
type Kind uint8

const (
	KindJoinRequest Kind = iota + 1
	KindJoinReply
	KindHeartbeat
	KindRequest
	KindReply
	KindReadReply
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "JOINREQ"
	case KindJoinReply:
		return "JOINREP"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindRequest:
		return "REQUEST"
	case KindReply:
		return "REPLY"
	case KindReadReply:
		return "READREPLY"
	default:
		return "UNKNOWN"
	}
}

// Op is a key-value operation kind.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpRead
	OpUpdate
	OpDelete
)

// String returns the wire tag of the operation.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpRead:
		return "READ"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// CarriesValue reports whether requests of this kind transport a value.
func (o Op) CarriesValue() bool {
	return o == OpCreate || o == OpUpdate
}

// Role is the ordinal position of a replica for one request. It is
// informational: replicas execute every role identically.
type Role uint8

const (
	RoleNone Role = iota
	RolePrimary
	RoleSecondary
	RoleTertiary
)

// String returns the wire tag of the role.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "PRIMARY"
	case RoleSecondary:
		return "SECONDARY"
	case RoleTertiary:
		return "TERTIARY"
	default:
		return ""
	}
}

// RoleAt returns the role of the i-th replica in placement order.
func RoleAt(i int) Role {
	switch i {
	case 0:
		return RolePrimary
	case 1:
		return RoleSecondary
	case 2:
		return RoleTertiary
	default:
		return RoleNone
	}
}

// Message is the closed set of protocol messages. Only types declared in this
// package implement it.
type Message interface {
	Kind() Kind
	sealed()
}

// JoinRequest asks an existing member to admit the sender.
type JoinRequest struct {
	Address   addr.Address
	Heartbeat int64
}

// Entry is one membership table row as carried in a JOIN-REPLY.
type Entry struct {
	Address   addr.Address
	Heartbeat int64
	Timestamp int64
}

// JoinReply carries the replier's full membership snapshot.
type JoinReply struct {
	Entries []Entry
}

// Heartbeat advertises the liveness counter of Address.
type Heartbeat struct {
	Address   addr.Address
	Heartbeat int64
}

// Request asks a replica to execute one operation on behalf of Origin.
type Request struct {
	TxID   int64
	Origin addr.Address
	Op     Op
	Role   Role
	Key    string
	Value  string
}

// Reply answers a CREATE, UPDATE or DELETE request.
type Reply struct {
	TxID    int64
	Origin  addr.Address
	Success bool
}

// ReadReply answers a READ request. An empty value is a miss.
type ReadReply struct {
	TxID   int64
	Origin addr.Address
	Value  string
}

func (JoinRequest) Kind() Kind { return KindJoinRequest }
func (JoinReply) Kind() Kind   { return KindJoinReply }
func (Heartbeat) Kind() Kind   { return KindHeartbeat }
func (Request) Kind() Kind     { return KindRequest }
func (Reply) Kind() Kind       { return KindReply }
func (ReadReply) Kind() Kind   { return KindReadReply }

func (JoinRequest) sealed() {}
func (JoinReply) sealed()   {}
func (Heartbeat) sealed()   {}
func (Request) sealed()     {}
func (Reply) sealed()       {}
func (ReadReply) sealed()   {}

// Sender delivers a message to a peer. Delivery is best effort.
type Sender interface {
	Send(to addr.Address, m Message)
}
