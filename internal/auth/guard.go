// ABOUTME: Ownership/role check applied by handlers before touching owned resources
// ABOUTME: Allows the owner or any admin; everyone else gets a precise 403

package auth

import (
	"context"
	"fmt"
)

// CanAccess reports whether the request identity owns the resource or is an admin.
// Anonymous requests never have access.
func CanAccess(ctx context.Context, ownerID string) bool {
	rc := FromContext(ctx)
	if !rc.Authenticated() {
		return false
	}
	return (ownerID != "" && ownerID == rc.UserID()) || rc.User.IsAdmin()
}

// Authorize returns nil when the caller may perform action on a resource owned by
// ownerID. action completes the sentence "You do not have permission to ...",
// e.g. "delete this dream".
func Authorize(ctx context.Context, ownerID, action string) error {
	if !FromContext(ctx).Authenticated() {
		return newError(KindAuthorizationRequired, nil)
	}
	if CanAccess(ctx, ownerID) {
		return nil
	}
	return &Error{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("You do not have permission to %s", action),
	}
}

// RequireAdmin returns nil only for authenticated administrators. It guards
// operations that have no single owner.
func RequireAdmin(ctx context.Context, action string) error {
	rc := FromContext(ctx)
	if !rc.Authenticated() {
		return newError(KindAuthorizationRequired, nil)
	}
	if rc.User.IsAdmin() {
		return nil
	}
	return &Error{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("You do not have permission to %s", action),
	}
}
