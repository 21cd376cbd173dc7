// ABOUTME: Handlers for dream journal entries: owner listing, public feed and CRUD
// ABOUTME: Private dreams are visible to their owner and admins; content is served as sanitized HTML too

package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/store"
)

const (
	maxTitleLen    = 200
	maxContentLen  = 20000
	maxMoodLen     = 40
	excerptLength  = 280
	defaultListCap = 50
	maxListCap     = 100
)

// DreamResponse is the JSON representation of a dream.
type DreamResponse struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentHTML   string `json:"content_html"`
	Mood          string `json:"mood,omitempty"`
	IsPublic      bool   `json:"is_public"`
	Transcript    string `json:"transcript,omitempty"`
	ComicImageURL string `json:"comic_image_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// DreamSummary is a list entry in the public feed.
type DreamSummary struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Excerpt       string `json:"excerpt"`
	Mood          string `json:"mood,omitempty"`
	ComicImageURL string `json:"comic_image_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// CreateDreamRequest is the body of POST /api/dreams.
type CreateDreamRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Mood     string `json:"mood"`
	IsPublic bool   `json:"is_public"`
}

// UpdateDreamRequest is the body of PATCH /api/dreams/{id}. Absent fields are left unchanged.
type UpdateDreamRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Mood     *string `json:"mood"`
	IsPublic *bool   `json:"is_public"`
}

func (g *Gateway) dreamResponse(d *store.Dream) (DreamResponse, error) {
	html, err := g.renderer.HTML(d.Content)
	if err != nil {
		return DreamResponse{}, err
	}
	return DreamResponse{
		ID:            d.ID,
		UserID:        d.UserID,
		Title:         d.Title,
		Content:       d.Content,
		ContentHTML:   html,
		Mood:          d.Mood,
		IsPublic:      d.IsPublic,
		Transcript:    d.Transcript,
		ComicImageURL: d.ComicImageURL,
		VideoURL:      d.VideoURL,
		CreatedAt:     formatTimestamp(d.CreatedAt),
		UpdatedAt:     formatTimestamp(d.UpdatedAt),
	}, nil
}

func (g *Gateway) sendDream(w http.ResponseWriter, r *http.Request, status int, d *store.Dream) {
	resp, err := g.dreamResponse(d)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, status, resp)
}

// listLimit parses ?limit=N. Invalid or missing values fall back to the
// default; larger values are clamped to maxListCap.
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListCap
	}
	return min(n, maxListCap)
}

// handleListDreams lists the caller's own dreams, newest first.
func (g *Gateway) handleListDreams(w http.ResponseWriter, r *http.Request) {
	dreams, err := g.store.ListDreamsByUser(r.Context(), auth.UserIDFromContext(r.Context()), listLimit(r))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	out := make([]DreamResponse, 0, len(dreams))
	for _, d := range dreams {
		resp, err := g.dreamResponse(d)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
		out = append(out, resp)
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleListPublicDreams serves the public feed to anyone.
func (g *Gateway) handleListPublicDreams(w http.ResponseWriter, r *http.Request) {
	dreams, err := g.store.ListPublicDreams(r.Context(), listLimit(r))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	out := make([]DreamSummary, 0, len(dreams))
	for _, d := range dreams {
		out = append(out, DreamSummary{
			ID:            d.ID,
			UserID:        d.UserID,
			Title:         d.Title,
			Excerpt:       g.renderer.Excerpt(d.Content, excerptLength),
			Mood:          d.Mood,
			ComicImageURL: d.ComicImageURL,
			VideoURL:      d.VideoURL,
			CreatedAt:     formatTimestamp(d.CreatedAt),
		})
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleCreateDream records a dream owned by the caller.
func (g *Gateway) handleCreateDream(w http.ResponseWriter, r *http.Request) {
	var req CreateDreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}

	d := &store.Dream{
		UserID:   auth.UserIDFromContext(r.Context()),
		Title:    strings.TrimSpace(req.Title),
		Content:  req.Content,
		Mood:     strings.TrimSpace(req.Mood),
		IsPublic: req.IsPublic,
	}
	if err := validateDream(d); err != nil {
		g.sendError(w, r, err)
		return
	}

	if err := g.store.CreateDream(r.Context(), d); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.audit(r, store.AuditCreateDream, "dream", d.ID, nil)
	g.sendDream(w, r, http.StatusCreated, d)
}

// handleGetDream returns one dream; private ones only to the owner or an admin.
func (g *Gateway) handleGetDream(w http.ResponseWriter, r *http.Request) {
	d, err := g.store.GetDream(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	if !d.IsPublic {
		if err := auth.Authorize(r.Context(), d.UserID, "view this dream"); err != nil {
			g.sendError(w, r, err)
			return
		}
	}
	g.sendDream(w, r, http.StatusOK, d)
}

// handleUpdateDream applies a partial update.
func (g *Gateway) handleUpdateDream(w http.ResponseWriter, r *http.Request) {
	d, ok := g.loadOwnedDream(w, r, "update this dream")
	if !ok {
		return
	}

	var req UpdateDreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.Title != nil {
		d.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		d.Content = *req.Content
	}
	if req.Mood != nil {
		d.Mood = strings.TrimSpace(*req.Mood)
	}
	if req.IsPublic != nil {
		d.IsPublic = *req.IsPublic
	}
	if err := validateDream(d); err != nil {
		g.sendError(w, r, err)
		return
	}

	if err := g.store.UpdateDream(r.Context(), d); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.auditOwned(r, store.AuditUpdateDream, "dream", d.ID, d.UserID, nil)
	g.sendDream(w, r, http.StatusOK, d)
}

// handleDeleteDream removes a dream.
func (g *Gateway) handleDeleteDream(w http.ResponseWriter, r *http.Request) {
	d, ok := g.loadOwnedDream(w, r, "delete this dream")
	if !ok {
		return
	}

	if err := g.store.DeleteDream(r.Context(), d.ID); err != nil {
		g.sendError(w, r, err)
		return
	}

	g.auditOwned(r, store.AuditDeleteDream, "dream", d.ID, d.UserID, map[string]any{"title": d.Title})
	g.sendJSON(w, http.StatusOK, map[string]string{"id": d.ID})
}

// loadOwnedDream fetches the dream named by the {id} path parameter and checks
// the caller may perform action on it. It writes the error response itself.
func (g *Gateway) loadOwnedDream(w http.ResponseWriter, r *http.Request, action string) (*store.Dream, bool) {
	d, err := g.store.GetDream(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return nil, false
	}
	if err := auth.Authorize(r.Context(), d.UserID, action); err != nil {
		g.sendError(w, r, err)
		return nil, false
	}
	return d, true
}

func validateDream(d *store.Dream) error {
	switch {
	case d.Title == "":
		return badRequest("Title is required")
	case len(d.Title) > maxTitleLen:
		return badRequest("Title is too long")
	case len(d.Content) > maxContentLen:
		return badRequest("Content is too long")
	case len(d.Mood) > maxMoodLen:
		return badRequest("Mood is too long")
	}
	return nil
}
