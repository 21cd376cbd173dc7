// ABOUTME: Tests for the admin audit log endpoint
// ABOUTME: Only admins may read it; query parameters narrow the results

package gateway

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dream-gateway/internal/store"
)

func TestListAudit_RequiresAdmin(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "u1", store.RoleUser)

	rec := env.do(t, http.MethodGet, "/api/admin/audit", "", nil)
	requireError(t, rec, http.StatusUnauthorized, "Authorization required")

	rec = env.do(t, http.MethodGet, "/api/admin/audit", localToken(t, "u1"), nil)
	requireError(t, rec, http.StatusForbidden, "You do not have permission to read the audit log")
}

func TestListAudit_Filters(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "u1", store.RoleUser)
	env.addUser(t, "root", store.RoleAdmin)
	mine := env.addDream(t, "u1", "Mine", false)
	other := env.addDream(t, "u1", "Other", false)

	rec := env.do(t, http.MethodDelete, "/api/dreams/"+mine.ID, localToken(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/dreams/"+other.ID, localToken(t, "root"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token := localToken(t, "root")

	rec = env.do(t, http.MethodGet, "/api/admin/audit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	all := decodeData[[]AuditEntryResponse](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, string(store.AuditAdminOverride), all[0].Action)
	assert.Equal(t, "u1", all[0].Detail["owner_id"])
	assert.NotEmpty(t, all[0].Timestamp)

	rec = env.do(t, http.MethodGet, "/api/admin/audit?actor=u1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byActor := decodeData[[]AuditEntryResponse](t, rec)
	require.Len(t, byActor, 1)
	assert.Equal(t, mine.ID, byActor[0].TargetID)

	rec = env.do(t, http.MethodGet, "/api/admin/audit?action=delete_dream&target_type=dream&target_id="+other.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byTarget := decodeData[[]AuditEntryResponse](t, rec)
	require.Len(t, byTarget, 1)
	assert.Equal(t, "root", byTarget[0].ActorID)

	rec = env.do(t, http.MethodGet, "/api/admin/audit?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]AuditEntryResponse](t, rec), 1)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = env.do(t, http.MethodGet, "/api/admin/audit?since="+future, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]AuditEntryResponse](t, rec))
}

func TestListAudit_BadQuery(t *testing.T) {
	env := newTestGateway(t)
	env.addUser(t, "root", store.RoleAdmin)
	token := localToken(t, "root")

	tests := []struct {
		query   string
		message string
	}{
		{"action=rename_everything", "Unknown audit action"},
		{"since=yesterday", "since must be an RFC 3339 timestamp"},
		{"until=2026-13-01", "until must be an RFC 3339 timestamp"},
		{"limit=0", "limit must be a positive integer"},
		{"limit=ten", "limit must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/admin/audit?"+tt.query, token, nil)
			requireError(t, rec, http.StatusBadRequest, tt.message)
		})
	}
}
