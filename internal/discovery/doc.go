// Package discovery publishes node endpoints in etcd and resolves them for
// the gRPC transport.
//
// Each serving node registers "/ringkv/nodes/<id>:<port>" -> "host:port"
// under a lease it keeps alive. A Book mirrors that prefix through a watch
// and answers transport.AddressBook lookups, falling back to a static book
// for peers configured on the command line.
package discovery
