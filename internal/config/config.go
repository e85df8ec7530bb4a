package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ringkv/internal/addr"
)

// Dissemination modes.
const (
	DisseminationDirect = "direct"
	DisseminationGossip = "gossip"
)

// Ring hashers.
const (
	HasherXXHash = "xxhash"
	HasherFNV1a  = "fnv1a"
)

// Params holds the process parameters shared by every node. Durations are in
// logical ticks.
type Params struct {
	RingSize           int          `yaml:"ring_size"`
	TFail              int64        `yaml:"tfail"`
	TRemove            int64        `yaml:"tremove"`
	TransactionTimeout int64        `yaml:"transaction_timeout"`
	JoinRetry          int64        `yaml:"join_retry"`
	Replicas           int          `yaml:"replicas"`
	Quorum             int          `yaml:"quorum"`
	Dissemination      string       `yaml:"dissemination"`
	GossipFanout       int          `yaml:"gossip_fanout"`
	Hasher             string       `yaml:"hasher"`
	Introducer         addr.Address `yaml:"introducer"`
}

// Default returns the parameters used when nothing is configured.
func Default() Params {
	return Params{
		RingSize:           512,
		TFail:              5,
		TRemove:            20,
		TransactionTimeout: 3,
		JoinRetry:          10,
		Replicas:           3,
		Quorum:             2,
		Dissemination:      DisseminationDirect,
		GossipFanout:       30,
		Hasher:             HasherXXHash,
		Introducer:         addr.New(1, 0),
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.RingSize <= 0 {
		return ErrInvalidRingSize
	}
	if p.TFail <= 0 {
		return ErrInvalidTFail
	}
	if p.TRemove <= p.TFail {
		return ErrInvalidTRemove
	}
	if p.TransactionTimeout <= 0 {
		return ErrInvalidTransactionTimeout
	}
	if p.JoinRetry <= 0 {
		return ErrInvalidJoinRetry
	}
	if p.Replicas <= 0 || p.Quorum <= p.Replicas/2 || p.Quorum > p.Replicas {
		return ErrInvalidQuorum
	}
	switch p.Dissemination {
	case DisseminationDirect, DisseminationGossip:
	default:
		return ErrInvalidDissemination
	}
	if p.GossipFanout <= 0 {
		return ErrInvalidGossipFanout
	}
	switch p.Hasher {
	case HasherXXHash, HasherFNV1a:
	default:
		return ErrInvalidHasher
	}
	return nil
}

// Load reads YAML parameters from r on top of Default. Unknown fields are
// rejected. An empty document yields the defaults.
func Load(r io.Reader) (Params, error) {
	p := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Params{}, fmt.Errorf("decode params: %w", err)
	}

	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid params: %w", err)
	}
	return p, nil
}

// LoadFile is Load for a file on disk.
func LoadFile(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, err
	}
	defer f.Close()
	return Load(f)
}

// Peer maps a node address to the network endpoint serving it.
type Peer struct {
	Address addr.Address
	Target  string
}

// ParsePeers parses a comma-separated list of peers in the format:
// "1:0=host1:7000,2:0=host2:7000"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id:port=host:port)", part)
		}

		id := strings.TrimSpace(kv[0])
		target := strings.TrimSpace(kv[1])

		if id == "" || target == "" {
			return nil, fmt.Errorf("peer address and target cannot be empty: %s", part)
		}

		a, err := addr.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid peer %s: %w", part, err)
		}

		peers = append(peers, Peer{
			Address: a,
			Target:  target,
		})
	}

	return peers, nil
}

// Targets indexes peers by address. Later duplicates win.
func Targets(peers []Peer) map[addr.Address]string {
	out := make(map[addr.Address]string, len(peers))
	for _, p := range peers {
		out[p.Address] = p.Target
	}
	return out
}
