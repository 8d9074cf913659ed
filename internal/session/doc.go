// Package session holds the explicit context every catalog and graph operation runs in: a token source,
// the catalog client and the shared datastore.
//
// Catalog calls go through [Call], which fetches a valid token immediately before the request and, when
// the catalog answers 401, forces one refresh and retries once. Any further failure is returned as is.
//
// The acting user's identity is resolved from the catalog on every call to [Session.CurrentUser]; nothing
// about the identity is cached between operations.
package session
