// Package sim runs a group of nodes in one process over a simulated
// network driven by a shared logical clock.
//
// Cluster is the building block used by tests: it adds nodes, advances the
// clock and kills nodes. Scenario describes a whole run in YAML (parameters,
// network faults, node count, client operations and failures) and is what
// the simulate command executes.
package sim
