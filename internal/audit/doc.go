// Package audit records the externally observable outcomes of a node: peers
// joining and leaving its membership table, and the success or failure of
// key-value operations on both the coordinator and the replicas.
package audit
