// Package repositories implements the secure local credential store.
//
// The store holds exactly three secrets, addressed by [models.CredentialKey], with per-key set, get and delete.
// There is deliberately no enumeration API.
//
// Implementations:
//   - [SQLiteCredentialStore] : durable store in the local sqlite database (credentials table)
//   - [MemoryCredentialStore] : process-local store for tests and ephemeral sessions
package repositories
