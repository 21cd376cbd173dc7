// Package auth authenticates bearer tokens and authorizes access to owned resources.
//
// # Trust roots
//
// Two issuers sign the tokens this gateway accepts:
//
//   - The platform identity provider. Its tokens carry a "sub" claim and are
//     verified with the platform secret (HMAC) or a JWKS key set (RSA/ECDSA/EdDSA).
//   - The gateway itself. Local tokens carry "id" and "email" claims and are
//     verified with the local secret. TokenIssuer mints them.
//
// Classify decodes the payload without trusting it, only to choose which root
// verifies the signature. A token is never checked against both roots.
//
// # Pipeline
//
// Authenticator runs extract, verify and resolve once per request:
//
//	Authorization: Bearer <token>
//	    -> TokenVerifier.Verify   (Subject)
//	    -> IdentityResolver.Resolve (Identity, one store lookup)
//
// Strict middleware rejects any failure. Client-caused failures all become
// 401 "Invalid or expired token" (or "Authorization required" when no token was
// sent); missing key material and store outages become 500. Optional middleware
// continues anonymously instead.
//
// # Authorization
//
// Handlers call Authorize with the owner of the resource they are about to
// touch. The owner and any identity whose role contains "admin" pass; anyone
// else gets a 403 naming the action.
package auth
