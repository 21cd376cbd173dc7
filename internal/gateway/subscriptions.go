// ABOUTME: Handlers for paid plan subscriptions held by users
// ABOUTME: Creating or canceling one updates the owner's tier in the same store transaction

package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/store"
)

// SubscriptionResponse is the JSON representation of a subscription.
type SubscriptionResponse struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
	CanceledAt       string `json:"canceled_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// CreateSubscriptionRequest is the body of POST /api/subscriptions.
type CreateSubscriptionRequest struct {
	Plan             string `json:"plan"`
	CurrentPeriodEnd string `json:"current_period_end"`
}

func subscriptionResponse(s *store.Subscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		Plan:      s.Plan,
		Status:    s.Status,
		CreatedAt: formatTimestamp(s.CreatedAt),
	}
	if s.CurrentPeriodEnd != nil {
		resp.CurrentPeriodEnd = formatTimestamp(*s.CurrentPeriodEnd)
	}
	if s.CanceledAt != nil {
		resp.CanceledAt = formatTimestamp(*s.CanceledAt)
	}
	return resp
}

// handleListSubscriptions lists the caller's subscriptions.
func (g *Gateway) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := g.store.ListSubscriptionsByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, subscriptionResponse(s))
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleCreateSubscription starts a subscription owned by the caller.
func (g *Gateway) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}

	plan := strings.ToLower(strings.TrimSpace(req.Plan))
	if plan == "" || plan == store.TierFree {
		g.sendError(w, r, badRequest("A paid plan is required"))
		return
	}

	sub := &store.Subscription{
		UserID: auth.UserIDFromContext(r.Context()),
		Plan:   plan,
	}
	if req.CurrentPeriodEnd != "" {
		end, err := time.Parse(time.RFC3339, req.CurrentPeriodEnd)
		if err != nil {
			g.sendError(w, r, badRequest("current_period_end must be an RFC 3339 timestamp"))
			return
		}
		end = end.UTC()
		sub.CurrentPeriodEnd = &end
	}

	if err := g.store.CreateSubscription(r.Context(), sub); err != nil {
		g.sendError(w, r, err)
		return
	}

	g.audit(r, store.AuditCreateSubscription, "subscription", sub.ID, map[string]any{"plan": plan})
	g.sendJSON(w, http.StatusCreated, subscriptionResponse(sub))
}

// handleGetSubscription returns one subscription to its owner or an admin.
func (g *Gateway) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.loadOwnedSubscription(w, r, "view this subscription")
	if !ok {
		return
	}
	g.sendJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// handleCancelSubscription cancels an active subscription.
func (g *Gateway) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.loadOwnedSubscription(w, r, "cancel this subscription")
	if !ok {
		return
	}

	canceled, err := g.store.CancelSubscription(r.Context(), sub.ID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	g.auditOwned(r, store.AuditCancelSubscription, "subscription", sub.ID, sub.UserID, map[string]any{"plan": sub.Plan})
	g.sendJSON(w, http.StatusOK, subscriptionResponse(canceled))
}

func (g *Gateway) loadOwnedSubscription(w http.ResponseWriter, r *http.Request, action string) (*store.Subscription, bool) {
	sub, err := g.store.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return nil, false
	}
	if err := auth.Authorize(r.Context(), sub.UserID, action); err != nil {
		g.sendError(w, r, err)
		return nil, false
	}
	return sub, true
}
