// Package datastore implements the shared real-time key/value tree that backs the social graph and reviews.
//
// Paths are "/"-joined keys such as users/u1/friends/u2. Every node holds a flat map of string fields
// and may have children; a node with children but no fields exists implicitly.
//
// Reads are either one-shot ([Store.Get], [Store.Children]) or continuous ([Store.Subscribe]).
// A [Subscription] delivers the current snapshot and then a fresh snapshot after every change at, above
// or below its path. Delivery is latest-wins: a slow reader may skip intermediate snapshots but always
// receives the most recent one.
//
// Every write touches one path. There are no multi-path transactions, so callers that need several writes
// must order them so that an interruption leaves a safe state.
//
// Implementations:
//   - [RedisStore] : nodes as JSON strings, child indexes as sorted sets, change notification over pub/sub
//   - [MemoryStore] : in-process tree for tests and single-user sessions
package datastore
