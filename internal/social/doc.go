// Package social maintains the friend graph stored in the shared datastore.
//
// A friendship is a pair of edges, users/A/friends/B and users/B/friends/A, each holding the peer's display
// name. A pending request lives at users/{target}/friendRequests/{requester}.
//
// The datastore has no multi-path transactions, so every mutation is a named, ordered list of idempotent
// steps. The order fixes what an interruption leaves behind:
//
//	approve: edge self->requester, edge requester->self, delete request   (leftover request, never half a friendship)
//	remove:  delete self->peer, delete peer->self                          (peer still sees the friendship)
//
// A failed step is reported as a [shared.GraphWriteError] naming the step and the steps that completed.
// [Service.Audit] finds the states an interruption can leave and [Service.Repair] finishes them.
//
// The acting user is resolved fresh for every operation. Requests to, approvals of and removals of oneself
// are logged and skipped without error.
package social
