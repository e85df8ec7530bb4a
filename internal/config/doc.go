// Package config provides the process parameters (ring size, failure
// detection timeouts, quorum sizes) and parsing of peer lists for the
// networked server.
package config
