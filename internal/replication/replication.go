package replication

import (
	"errors"
	"fmt"

	"ringkv/internal/ring"
	"ringkv/internal/wire"
)

// ErrInvalidArgument is returned for client operations with an empty key.
var ErrInvalidArgument = errors.New("key cannot be empty")

// Target is one replica chosen for a key, with its informational role.
type Target struct {
	Node ring.Node
	Role wire.Role
}

// GetReplicasForKey returns the N replicas responsible for a key in
// placement order, tagged PRIMARY, SECONDARY and TERTIARY.
func GetReplicasForKey(r ring.Ring, key string, replicationFactor int) ([]Target, error) {
	if replicationFactor <= 0 {
		replicationFactor = 3 // default
	}
	nodes, err := r.FindReplicas(key, replicationFactor)
	if err != nil {
		return nil, fmt.Errorf("replicas for %q: %w", key, err)
	}

	targets := make([]Target, len(nodes))
	for i, n := range nodes {
		targets[i] = Target{Node: n, Role: wire.RoleAt(i)}
	}
	return targets, nil
}
