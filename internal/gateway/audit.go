// ABOUTME: Admin-only read access to the audit log
// ABOUTME: Query parameters map onto store.AuditFilter; results are newest first

package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/store"
)

// AuditEntryResponse is the JSON representation of one audit log entry.
type AuditEntryResponse struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Timestamp  string         `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func auditEntryResponse(e *store.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         e.ID,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Timestamp:  formatTimestamp(e.Timestamp),
		Detail:     e.Detail,
	}
}

// parseAuditFilter reads actor, action, target_type, target_id, since, until
// and limit from the query string.
func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	var f store.AuditFilter

	optional := func(key string) *string {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return &v
		}
		return nil
	}
	f.ActorID = optional("actor")
	f.TargetType = optional("target_type")
	f.TargetID = optional("target_id")

	if v := optional("action"); v != nil {
		action := store.AuditAction(*v)
		if !action.Valid() {
			return f, badRequest("Unknown audit action")
		}
		f.Action = &action
	}

	for key, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		v := optional(key)
		if v == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, *v)
		if err != nil {
			return f, badRequest(key + " must be an RFC 3339 timestamp")
		}
		*dst = &ts
	}

	if v := optional("limit"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil || n <= 0 {
			return f, badRequest("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// handleListAudit serves GET /api/admin/audit.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireAdmin(r.Context(), "read the audit log"); err != nil {
		g.sendError(w, r, err)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	entries, err := g.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, auditEntryResponse(&entries[i]))
	}
	g.sendJSON(w, http.StatusOK, out)
}
