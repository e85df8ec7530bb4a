// Package replication implements the replicated key-value store on top of
// the ring.
//
// The Coordinator side turns a client operation into one request per
// replica and resolves it through a quorum.Table. The Replica side executes
// requests against the local storage.Store and answers the coordinator.
// Operations return a transaction id immediately; their outcome is reported
// later through the audit sink.
package replication
