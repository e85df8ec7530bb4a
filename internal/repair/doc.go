// Package repair keeps replica sets full when the ring changes.
//
// Every tick a node compares its two ring successors with the pair it last
// pushed to. When they differ, it re-issues a CREATE for every key it holds
// so the keys reach their current replicas. The push is full and one-way;
// replicas that already hold a key simply fail the CREATE.
package repair
