// Package gossip implements heartbeat-based group membership and failure
// detection.
//
// A node joins through a well-known introducer, which answers with its whole
// table. From then on every member periodically increments its own heartbeat
// counter and spreads it, either directly to every known member or by
// probabilistic relay. A member whose counter has not advanced for TRemove
// ticks is evicted. Counters only move forward: stale observations are
// dropped, and an evicted address is only re-admitted with a counter larger
// than the one it was evicted with.
//
// Membership does no I/O and keeps no goroutines. Its owner delivers messages
// and calls Housekeep once per tick.
package gossip
