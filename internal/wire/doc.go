// Package wire defines the messages exchanged between nodes and their byte
// encoding.
//
// Every frame starts with a one-byte Kind tag. Membership messages
// (JoinRequest, JoinReply, Heartbeat) carry a protobuf wire-format body.
// Replication messages (Request, Reply, ReadReply) carry a Record: seven text
// fields joined by the ASCII unit separator, with key and value quoted so they
// can hold any byte.
//
// Decode never panics on hostile input. Malformed frames yield
// ErrProtocolViolation, frames with an unknown tag yield ErrUnknownKind.
package wire
