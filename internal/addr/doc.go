// Package addr defines the node address used both as a transport endpoint
// and as the input of the consistent hashing ring.
package addr
