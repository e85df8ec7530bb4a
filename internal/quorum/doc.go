// Package quorum tracks outstanding coordinator transactions and decides when
// each one succeeds or fails.
//
// A transaction succeeds once the required number of replicas reply
// successfully. It fails once as many replies as there are replicas have
// been seen without reaching that number. Replies that never arrive are
// accounted for by Sweep, which counts one extra reply per tick after the
// timeout. Resolved transactions leave the table, so late replies are no-ops.
package quorum
