// Package telemetry holds the Prometheus collectors shared by every node in
// the process. Simulated clusters run many nodes in one process, so per-node
// series carry a "node" label.
package telemetry
