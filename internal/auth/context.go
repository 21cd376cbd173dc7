// ABOUTME: Request identity carried through handlers via context.Context
// ABOUTME: Provides WithIdentity/FromContext; user and user id are always set together

package auth

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"
)

// Role words that mark a role as administrative when they end the role name,
// and words that negate it anywhere in the name.
var (
	adminWords    = []string{"admin", "administrator", "superadmin"}
	negatingWords = []string{"no", "non", "not"}
)

// Identity is the resolved user record attached to an authenticated request.
type Identity struct {
	ID          string
	Email       string
	Role        string
	Tier        string
	IsPremium   bool
	DisplayName string
	Issuer      IssuerKind
	CreatedAt   time.Time
}

// IsAdmin returns true if the identity's role carries the administrative marker.
func (i *Identity) IsAdmin() bool {
	return i != nil && IsAdmin(i.Role)
}

// IsAdmin reports whether role names an administrator. The role is split into
// words on any non-alphanumeric rune and matched case-insensitively: the last
// word must be an admin word, so "admin", "Super_Admin" and "org:administrator"
// qualify while "readmin_pending" and "not_admin" do not.
func IsAdmin(role string) bool {
	words := strings.FieldsFunc(strings.ToLower(role), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if slices.Contains(negatingWords, w) {
			return false
		}
	}
	return slices.Contains(adminWords, words[len(words)-1])
}

// RequestContext is the per-request view of who is calling. The user id is
// derived from User, so the two can never disagree.
type RequestContext struct {
	User *Identity
}

// UserID returns the authenticated user's id, or "" for anonymous requests.
func (rc RequestContext) UserID() string {
	if rc.User == nil {
		return ""
	}
	return rc.User.ID
}

// Authenticated reports whether an identity was attached to the request.
func (rc RequestContext) Authenticated() bool {
	return rc.User != nil
}

// identityContextKey is the key type for storing Identity in context.Context.
type identityContextKey struct{}

// WithIdentity returns a new context with the identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the request context. It is empty (anonymous) when no
// identity has been attached.
func FromContext(ctx context.Context) RequestContext {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return RequestContext{User: id}
}

// UserIDFromContext is shorthand for FromContext(ctx).UserID().
func UserIDFromContext(ctx context.Context) string {
	return FromContext(ctx).UserID()
}
