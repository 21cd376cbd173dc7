// ABOUTME: Maps a verified subject id to a full user record with one store lookup
// ABOUTME: Not-found and store failures are reported as distinct auth error kinds

package auth

import (
	"context"
	"errors"

	"github.com/2389/dream-gateway/internal/store"
)

// UserStore is the slice of the datastore the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// IdentityResolver resolves a subject id to an Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, subjectID string) (*Identity, error)
}

// Resolver implements IdentityResolver on top of a UserStore.
type Resolver struct {
	users UserStore
}

// NewResolver creates a Resolver backed by users.
func NewResolver(users UserStore) *Resolver {
	return &Resolver{users: users}
}

// Resolve performs a single point lookup. It does not retry.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (*Identity, error) {
	u, err := r.users.GetUser(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindUserNotFound, err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(KindUpstreamUnavailable, err)
	}
	return IdentityFromUser(u), nil
}

// IdentityFromUser converts a stored user into an Identity.
func IdentityFromUser(u *store.User) *Identity {
	return &Identity{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Tier:        u.Tier,
		IsPremium:   u.IsPremium,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}
