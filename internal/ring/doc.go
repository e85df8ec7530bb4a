// Package ring implements a consistent hashing ring with one position per
// node. Positions are the hash of the node address modulo a fixed ring size.
// A key is owned by the first node at or after its position and replicated
// to the nodes that follow it clockwise.
//
// A Ring is a value: it is rebuilt from the membership list on every tick and
// compared with the previous one to detect topology changes.
package ring
