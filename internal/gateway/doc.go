// Package gateway serves the dreams HTTP API.
//
// # Overview
//
// A Gateway owns the datastore, the bearer-token authenticator, the markdown
// renderer, the generation service clients and the HTTP server. New builds all
// of them from a config.Config; NewWithDeps accepts pre-built collaborators,
// which is how the tests inject a MockStore and fake services.
//
// # Routing
//
// Routes are registered on a chi router. Every /api route runs either strict
// or optional authentication from package auth:
//
//   - strict routes reject callers that do not present a valid token for a
//     known user (401, or 500 when the server is misconfigured)
//   - optional routes let anonymous callers through; handlers then use
//     auth.Authorize to keep private dreams and profiles to their owners
//
// Generation routes (transcription, comic, video) are additionally limited per
// user with a token bucket. GET /api/admin/audit is strict and then admitted
// only for administrators through auth.RequireAdmin.
//
// # Responses
//
// Every API response uses the same envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": {"message": "...", "stack": "..."}}
//
// The stack is included only when server.environment is not "production".
//
// # Lifecycle
//
// Run listens on server.http_addr, or joins a tailnet through tsnet when
// tailscale.enabled is set, and blocks until its context is canceled. Health
// endpoints /health and /health/ready need no authentication; /metrics serves
// Prometheus metrics when enabled.
package gateway
