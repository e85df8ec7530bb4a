package ring

import (
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"ringkv/internal/addr"
)

// ErrUnavailable is returned when the ring has too few nodes to place a key.
var ErrUnavailable = errors.New("not enough nodes in ring")

// Hasher maps a string to a point before reduction modulo the ring size.
type Hasher func(s string) uint64

// XXHash is the default Hasher.
func XXHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// FNV1a hashes with 64-bit FNV-1a.
func FNV1a(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// HasherByName returns the hasher registered under name ("xxhash" or "fnv1a").
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "xxhash":
		return XXHash, nil
	case "fnv1a":
		return FNV1a, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// Node is a member placed on the ring.
type Node struct {
	Address addr.Address
	Slot    uint64
}

// Ring is an immutable consistent hashing ring with one position per node.
// Nodes are ordered by slot, ties broken by address.
type Ring struct {
	nodes []Node
	size  uint64
	hash  Hasher
}

// Build places addrs on a ring of size slots. Duplicate addresses are placed
// once. The result does not depend on the order of addrs.
func Build(addrs []addr.Address, size int, h Hasher) Ring {
	if size <= 0 {
		size = 512 // default
	}
	if h == nil {
		h = XXHash
	}

	r := Ring{size: uint64(size), hash: h}
	seen := make(map[addr.Address]bool, len(addrs))
	r.nodes = make([]Node, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		r.nodes = append(r.nodes, Node{Address: a, Slot: r.Slot(a.String())})
	}

	// Sort by slot for binary search
	sort.Slice(r.nodes, func(i, j int) bool {
		if r.nodes[i].Slot != r.nodes[j].Slot {
			return r.nodes[i].Slot < r.nodes[j].Slot
		}
		return addr.Compare(r.nodes[i].Address, r.nodes[j].Address) < 0
	})
	return r
}

// Slot returns the ring position of s.
func (r Ring) Slot(s string) uint64 {
	if r.size == 0 {
		return 0
	}
	return r.hash(s) % r.size
}

// Len returns the number of nodes on the ring.
func (r Ring) Len() int {
	return len(r.nodes)
}

// Nodes returns a copy of the ring in order.
func (r Ring) Nodes() []Node {
	return slices.Clone(r.nodes)
}

// Index returns the position of a in the ring, or -1.
func (r Ring) Index(a addr.Address) int {
	for i, n := range r.nodes {
		if n.Address == a {
			return i
		}
	}
	return -1
}

// Equal reports whether both rings hold the same nodes at the same slots.
func (r Ring) Equal(o Ring) bool {
	return slices.Equal(r.nodes, o.nodes)
}

// FindReplicas returns the n nodes responsible for key: the first node whose
// slot is at or after the key's slot (wrapping to the start), followed by the
// next n-1 nodes clockwise.
func (r Ring) FindReplicas(key string, n int) ([]Node, error) {
	if n <= 0 {
		return []Node{}, nil
	}
	if len(r.nodes) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrUnavailable, n, len(r.nodes))
	}

	keySlot := r.Slot(key)

	// Binary search for first node with slot >= keySlot
	idx := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].Slot >= keySlot
	})

	// Wrap around if keySlot is greater than all nodes
	if idx >= len(r.nodes) {
		idx = 0
	}

	return r.walk(idx, n), nil
}

// Successors returns the n nodes following a clockwise. a must be on the ring
// and the ring must hold at least n other nodes.
func (r Ring) Successors(a addr.Address, n int) ([]Node, error) {
	idx := r.Index(a)
	if idx < 0 {
		return nil, fmt.Errorf("%s is not on the ring", a)
	}
	if len(r.nodes)-1 < n {
		return nil, fmt.Errorf("%w: need %d successors, have %d", ErrUnavailable, n, len(r.nodes)-1)
	}
	return r.walk(idx+1, n), nil
}

// Predecessors returns the n nodes preceding a on the ring, nearest first.
// The same constraints as Successors apply.
func (r Ring) Predecessors(a addr.Address, n int) ([]Node, error) {
	idx := r.Index(a)
	if idx < 0 {
		return nil, fmt.Errorf("%s is not on the ring", a)
	}
	if len(r.nodes)-1 < n {
		return nil, fmt.Errorf("%w: need %d predecessors, have %d", ErrUnavailable, n, len(r.nodes)-1)
	}
	result := make([]Node, 0, n)
	for i := 1; i <= n; i++ {
		result = append(result, r.nodes[(idx-i+len(r.nodes))%len(r.nodes)])
	}
	return result, nil
}

func (r Ring) walk(start, n int) []Node {
	result := make([]Node, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, r.nodes[(start+i)%len(r.nodes)])
	}
	return result
}
