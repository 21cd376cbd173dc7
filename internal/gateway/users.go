// ABOUTME: Handlers for token exchange, the caller's own account and public profiles
// ABOUTME: Profile writes are owner-or-admin; private profiles are hidden from everyone else

package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/store"
)

const (
	maxUsernameLen = 40
	maxBioLen      = 2000
)

// UserResponse is the JSON representation of an account.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Tier        string `json:"tier"`
	IsPremium   bool   `json:"is_premium"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// TokenResponse is returned by POST /api/auth/exchange.
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// ProfileResponse is the JSON representation of a profile.
type ProfileResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsPublic  bool   `json:"is_public"`
	UpdatedAt string `json:"updated_at"`
}

// ProfileRequest is the body of PUT /api/profiles/{userID}.
type ProfileRequest struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
	IsPublic  bool   `json:"is_public"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func userResponseFromIdentity(id *auth.Identity) UserResponse {
	return UserResponse{
		ID:          id.ID,
		Email:       id.Email,
		Role:        id.Role,
		Tier:        id.Tier,
		IsPremium:   id.IsPremium,
		DisplayName: id.DisplayName,
		CreatedAt:   formatTimestamp(id.CreatedAt),
	}
}

func profileResponse(p *store.Profile) ProfileResponse {
	return ProfileResponse{
		UserID:    p.UserID,
		Username:  p.Username,
		Bio:       p.Bio,
		AvatarURL: p.AvatarURL,
		IsPublic:  p.IsPublic,
		UpdatedAt: formatTimestamp(p.UpdatedAt),
	}
}

// handleExchangeToken issues a local token for the authenticated caller, so
// clients holding a platform token can switch to the gateway's own issuer.
func (g *Gateway) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	user := auth.FromContext(r.Context()).User

	token, expiresAt, err := g.issuer.Issue(user, g.config.Auth.LocalTokenTTL)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	g.audit(r, store.AuditIssueToken, "user", user.ID, map[string]any{
		"issuer":     user.Issuer.String(),
		"expires_at": formatTimestamp(expiresAt),
	})

	g.sendJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: formatTimestamp(expiresAt),
		User:      userResponseFromIdentity(user),
	})
}

// handleMe returns the caller's resolved identity.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, userResponseFromIdentity(auth.FromContext(r.Context()).User))
}

// handleGetProfile returns a profile. Private profiles require the owner or an admin.
func (g *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := g.store.GetProfile(r.Context(), userID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	if !p.IsPublic {
		if err := auth.Authorize(r.Context(), p.UserID, "view this profile"); err != nil {
			g.sendError(w, r, err)
			return
		}
	}

	g.sendJSON(w, http.StatusOK, profileResponse(p))
}

// handlePutProfile creates or replaces a user's profile.
func (g *Gateway) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := auth.Authorize(r.Context(), userID, "update this profile"); err != nil {
		g.sendError(w, r, err)
		return
	}

	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	if err := validateProfile(&req); err != nil {
		g.sendError(w, r, err)
		return
	}

	// Admins may target any id; make sure it names a real account.
	if _, err := g.store.GetUser(r.Context(), userID); err != nil {
		g.sendError(w, r, err)
		return
	}

	p := &store.Profile{
		UserID:    userID,
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		IsPublic:  req.IsPublic,
	}
	if err := g.store.UpsertProfile(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			g.sendJSONError(w, http.StatusConflict, "Username is already taken")
			return
		}
		g.sendError(w, r, err)
		return
	}

	g.auditOwned(r, store.AuditUpdateProfile, "profile", userID, userID, nil)
	g.sendJSON(w, http.StatusOK, profileResponse(p))
}

func validateProfile(req *ProfileRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.AvatarURL = strings.TrimSpace(req.AvatarURL)

	if len(req.Username) > maxUsernameLen {
		return badRequest("Username is too long")
	}
	if len(req.Bio) > maxBioLen {
		return badRequest("Bio is too long")
	}
	if req.AvatarURL != "" && !strings.HasPrefix(req.AvatarURL, "https://") {
		return badRequest("Avatar URL must use https")
	}
	return nil
}

// audit appends an audit entry for the caller. Failures are logged, never
// surfaced, because the action itself already succeeded.
func (g *Gateway) audit(r *http.Request, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorID:    auth.UserIDFromContext(r.Context()),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := g.store.AppendAuditLog(r.Context(), entry); err != nil {
		g.logger.Warn("audit log append failed", "action", action, "target_id", targetID, "error", err)
	}
}

// auditOwned records action and, when the caller is not the owner, an
// additional admin override entry.
func (g *Gateway) auditOwned(r *http.Request, action store.AuditAction, targetType, targetID, ownerID string, detail map[string]any) {
	g.audit(r, action, targetType, targetID, detail)
	if auth.UserIDFromContext(r.Context()) != ownerID {
		g.audit(r, store.AuditAdminOverride, targetType, targetID, map[string]any{
			"action":   string(action),
			"owner_id": ownerID,
		})
	}
}
