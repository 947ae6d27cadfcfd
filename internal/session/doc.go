// Package session holds the in-memory session registry and its data types.
//
// All session access goes through the Store's create/get/mutate/delete
// contract. Lookups return private clones, so no caller ever shares mutable
// state with the registry; mutations run under a per-session lock and
// mutations for different sessions never block each other. An optional
// background sweeper evicts sessions idle past a TTL.
package session
