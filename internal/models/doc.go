// Package models defines the domain entities shared by the credential store, the catalog client,
// the social graph and the review store.
//
// Two families of types live here:
//
// 1. Local state, never shared across users:
//   - [Credential] : access token, refresh token and expiry persisted in the secure store
//
// 2. Records in the shared real-time tree, addressed by the path helpers in paths.go:
//   - [UserRecord] : root node users/{id}
//   - [Friend] : one direction of a friendship or a pending request
//   - [Review] : rating and text keyed under the author
//
// [UserIdentity] is derived on demand from the catalog profile and is the primary key for both families.
package models
