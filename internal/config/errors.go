package config

import "errors"

var (
	ErrInvalidRingSize           = errors.New("ring_size must be positive")
	ErrInvalidTFail              = errors.New("tfail must be positive")
	ErrInvalidTRemove            = errors.New("tremove must exceed tfail")
	ErrInvalidTransactionTimeout = errors.New("transaction_timeout must be positive")
	ErrInvalidJoinRetry          = errors.New("join_retry must be positive")
	ErrInvalidQuorum             = errors.New("quorum must be a majority of replicas")
	ErrInvalidDissemination      = errors.New("dissemination must be direct or gossip")
	ErrInvalidGossipFanout       = errors.New("gossip_fanout must be positive")
	ErrInvalidHasher             = errors.New("hasher must be xxhash or fnv1a")
)
