// Package transport moves encoded messages between nodes.
//
// Network is the in-process lossy network used by simulations and tests. It
// keeps one inbox queue per registered address and can drop, duplicate and
// reorder packets using a seeded random source, so runs are reproducible.
//
// GRPC carries the same packets between processes. It exposes a single unary
// method, ringkv.Transport/Deliver, and keeps one cached client connection per
// peer.
package transport
