// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Strict rejects on any failure; Optional continues anonymously instead

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorWriter writes a rejection to the client. message is already client-safe.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

// Observer receives one call per authentication attempt (for metrics).
type Observer interface {
	ObserveAuth(mode string, outcome string)
}

// Authenticator orchestrates token verification and identity resolution.
type Authenticator struct {
	verifier   TokenVerifier
	resolver   IdentityResolver
	logger     *slog.Logger
	writeError ErrorWriter
	observer   Observer
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithErrorWriter overrides how strict rejections are written.
func WithErrorWriter(fn ErrorWriter) AuthenticatorOption {
	return func(a *Authenticator) { a.writeError = fn }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) AuthenticatorOption {
	return func(a *Authenticator) { a.observer = o }
}

// NewAuthenticator creates an Authenticator. A nil logger discards logs.
func NewAuthenticator(verifier TokenVerifier, resolver IdentityResolver, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Authenticator{
		verifier:   verifier,
		resolver:   resolver,
		logger:     logger,
		writeError: writeJSONError,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", newError(KindAuthorizationRequired, errors.New("missing authorization header"))
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", newError(KindAuthorizationRequired, errors.New("invalid authorization header format"))
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", newError(KindAuthorizationRequired, errors.New("empty token"))
	}
	return token, nil
}

// Authenticate runs the full pipeline for one Authorization header value:
// extract, verify, resolve. It is attempted exactly once; nothing is cached.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*Identity, error) {
	token, err := extractBearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	subject, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	identity, err := a.resolver.Resolve(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	identity.Issuer = subject.Issuer
	return identity, nil
}

// Strict returns middleware that rejects the request unless it authenticates.
// Client-caused failures all become the same 401 so callers cannot tell which
// stage failed; server-caused failures become a 500.
func (a *Authenticator) Strict() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if r.Context().Err() != nil {
					// Client went away; nothing to write.
					a.observe("strict", "canceled")
					return
				}
				status, message := strictRejection(err)
				a.logFailure(r, "strict", err)
				a.observe("strict", string(kindOrUnknown(err)))
				a.writeError(w, r, status, message)
				return
			}

			a.observe("strict", "ok")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Optional returns middleware that attaches an identity when the request carries
// a usable token and otherwise continues anonymously.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				// Deliberately discarded: anonymous callers are allowed here.
				if KindOf(err) != KindAuthorizationRequired {
					a.logger.Debug("optional auth failed, continuing anonymously",
						"path", r.URL.Path,
						"kind", kindOrUnknown(err),
						"error", err,
					)
				}
				a.observe("optional", "anonymous")
				next.ServeHTTP(w, r)
				return
			}

			a.observe("optional", "ok")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// strictRejection collapses an auth failure into what the client is allowed to see.
func strictRejection(err error) (int, string) {
	switch kind := KindOf(err); {
	case kind == KindAuthorizationRequired:
		return http.StatusUnauthorized, kind.defaultMessage()
	case kind == "" || kind.ServerCaused():
		return http.StatusInternalServerError, "Internal server error"
	default:
		return http.StatusUnauthorized, KindInvalidOrExpiredToken.defaultMessage()
	}
}

func kindOrUnknown(err error) ErrorKind {
	if kind := KindOf(err); kind != "" {
		return kind
	}
	return "unknown"
}

func (a *Authenticator) logFailure(r *http.Request, mode string, err error) {
	level := slog.LevelWarn
	if KindOf(err).ServerCaused() || KindOf(err) == "" {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "auth failure",
		"mode", mode,
		"kind", kindOrUnknown(err),
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"error", err,
	)
}

func (a *Authenticator) observe(mode, outcome string) {
	if a.observer != nil {
		a.observer.ObserveAuth(mode, outcome)
	}
}

// writeJSONError is the default ErrorWriter.
func writeJSONError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"message": message},
	})
}
