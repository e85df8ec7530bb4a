// Package storage provides the local key-value storage interface and
// in-memory implementation. A node's store holds every key for which the
// node is one of the replicas, with no versioning: the replication layer
// decides which writes reach it.
package storage
