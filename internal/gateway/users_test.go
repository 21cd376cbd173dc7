// ABOUTME: Tests for the account and profile endpoints
// ABOUTME: Private profiles must stay hidden from anyone but the owner and admins

package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dream-gateway/internal/store"
)

func TestMe(t *testing.T) {
	env := newTestGateway(t)
	u := env.addUser(t, "u1", store.RoleUser)

	rec := env.do(t, http.MethodGet, "/api/users/me", platformToken(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[UserResponse](t, rec)
	assert.Equal(t, u.Email, me.Email)
	assert.Equal(t, store.TierFree, me.Tier)
	assert.False(t, me.IsPremium)
}

func TestProfiles(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "u1", store.RoleUser)
	env.addUser(t, "u2", store.RoleUser)
	env.addUser(t, "admin", store.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "u1"), ProfileRequest{
		Username: " dreamer ",
		Bio:      "I sleep a lot",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "dreamer", decodeData[ProfileResponse](t, rec).Username)

	// Private: owner and admin only.
	rec = env.do(t, http.MethodGet, "/api/profiles/u1", "", nil)
	requireError(t, rec, http.StatusUnauthorized, "Authorization required")
	rec = env.do(t, http.MethodGet, "/api/profiles/u1", localToken(t, "u2"), nil)
	requireError(t, rec, http.StatusForbidden, "You do not have permission to view this profile")
	rec = env.do(t, http.MethodGet, "/api/profiles/u1", localToken(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/profiles/u1", localToken(t, "admin"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "u1"), ProfileRequest{
		Username: "dreamer",
		IsPublic: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/profiles/u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[ProfileResponse](t, rec).IsPublic)
}

func TestPutProfile_Guard(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "u1", store.RoleUser)
	env.addUser(t, "u2", store.RoleUser)
	env.addUser(t, "admin", store.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "u2"), ProfileRequest{Bio: "hijack"})
	requireError(t, rec, http.StatusForbidden, "You do not have permission to update this profile")

	rec = env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "admin"), ProfileRequest{Bio: "moderated"})
	require.Equal(t, http.StatusOK, rec.Code)

	action := store.AuditAdminOverride
	entries, err := env.store.ListAuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].ActorID)

	rec = env.do(t, http.MethodPut, "/api/profiles/nobody", localToken(t, "admin"), ProfileRequest{})
	requireError(t, rec, http.StatusNotFound, "Not found")
}

func TestPutProfile_Validation(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "u1", store.RoleUser)
	env.addUser(t, "u2", store.RoleUser)

	rec := env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "u1"), ProfileRequest{AvatarURL: "http://example.com/a.png"})
	requireError(t, rec, http.StatusBadRequest, "Avatar URL must use https")

	rec = env.do(t, http.MethodPut, "/api/profiles/u1", localToken(t, "u1"), ProfileRequest{Username: "taken"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/profiles/u2", localToken(t, "u2"), ProfileRequest{Username: "taken"})
	requireError(t, rec, http.StatusConflict, "Username is already taken")
}
