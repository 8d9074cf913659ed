// Package services implements the Spotify Web API catalog client.
//
// # Consumption contract
//
// [CatalogClient] is stateless with respect to credentials: every method takes the bearer token as an
// explicit argument and never caches or refreshes it. A non-2xx response becomes a
// [shared.CatalogRequestError] carrying the status and raw body; there is no retry on 401. Callers obtain
// a token immediately before each call and, on 401, refresh once and retry once (see internal/session).
//
// # Rate limiting
//
// Requests pass through a token-bucket limiter ([golang.org/x/time/rate]) configured from the [catalog]
// section so bursts of CLI calls stay under the API's limits.
//
// # Response types
//
// Types mirror https://developer.spotify.com/documentation/web-api/reference/ and decode only the fields
// the CLI renders.
package services
