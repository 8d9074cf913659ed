// Package server provides the small loopback HTTP surface used by the CLI.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] method patterns and applies [Middleware] in registration order
// (the first added is outermost). Custom [Handler] implementations declare their own routes.
//
// # Authorization callback
//
// [CallbackHandler] receives the redirect from the authorization server during interactive login. It checks
// the state parameter, classifies a user dismissal as [shared.ErrAuthCancelled] and every other failure as
// [shared.ErrAuthExchangeFailed], and hands the authorization code to the waiting login through a one-shot
// channel. The code exchange itself is done by the token manager, which owns credential persistence.
//
// Only the first callback is processed; later hits get 400.
//
// # Serving
//
// [Serve] runs an [http.Server] until its context ends and then shuts it down. The login flow uses it for the
// callback listener and the metrics command uses it for the Prometheus endpoint.
package server
