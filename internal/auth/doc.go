// Package auth owns the credential lifecycle: interactive authorization, code exchange, lazy refresh and logout.
//
// # State machine
//
//	LoggedOut -> Authenticating -> LoggedIn -> (Expired ->) Refreshing -> LoggedIn
//
// Authenticating and Refreshing fall back to LoggedOut on unrecoverable failure. A refresh rejected with
// invalid_grant deletes every stored credential, since only a new login can recover.
//
// # Expiry
//
// Expiry is checked at the point of use by [Manager.GetValidAccessToken] rather than by a timer.
// The comparison is strictly now > expires_at with no skew, and a missing or unreadable expiry counts as
// expired. Concurrent callers that find the token expired share a single refresh.
//
// # Persistence
//
// Credentials are written refresh token first, then expiry, then access token, so a reader that finds an
// access token always finds its expiry. If any write fails all three keys are deleted.
package auth
