// ABOUTME: Handlers that front the external generation services
// ABOUTME: Transcription and comics are synchronous; video returns a task that callers poll

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/generation"
	"github.com/2389/dream-gateway/internal/store"
)

const (
	maxAudioUpload  = 25 << 20
	maxPromptLength = 1500
)

// TranscriptionResponse is returned by POST /api/transcriptions.
type TranscriptionResponse struct {
	Text    string `json:"text"`
	DreamID string `json:"dream_id,omitempty"`
}

// ComicRequest is the optional body of POST /api/dreams/{id}/comic.
type ComicRequest struct {
	Style string `json:"style"`
}

// TaskResponse is the JSON representation of a generation task.
type TaskResponse struct {
	ID        string `json:"id"`
	DreamID   string `json:"dream_id,omitempty"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func taskResponse(t *store.GenerationTask) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		DreamID:   t.DreamID,
		Kind:      t.Kind,
		Status:    t.Status,
		ResultURL: t.ResultURL,
		Error:     t.Error,
		CreatedAt: formatTimestamp(t.CreatedAt),
		UpdatedAt: formatTimestamp(t.UpdatedAt),
	}
}

// observeGeneration records the outcome of one generation call.
func (g *Gateway) observeGeneration(ctx context.Context, service string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		result = "canceled"
	case errors.Is(err, generation.ErrNotConfigured):
		result = "not_configured"
	default:
		result = "upstream_error"
	}
	g.metrics.ObserveGeneration(service, result)
}

// dreamPrompt turns a dream into a plain-text generation prompt.
func (g *Gateway) dreamPrompt(d *store.Dream) string {
	body := g.renderer.Excerpt(d.Content, maxPromptLength)
	if body == "" {
		return d.Title
	}
	return d.Title + ". " + body
}

// handleTranscribe forwards an uploaded recording to the transcription service.
// With a dream_id form field the transcript is also stored on that dream.
func (g *Gateway) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		g.sendError(w, r, badRequest("Expected a multipart upload no larger than 25MB"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		g.sendError(w, r, badRequest("Missing audio file"))
		return
	}
	defer file.Close()

	var dream *store.Dream
	if dreamID := strings.TrimSpace(r.FormValue("dream_id")); dreamID != "" {
		d, err := g.store.GetDream(r.Context(), dreamID)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
		if err := auth.Authorize(r.Context(), d.UserID, "transcribe into this dream"); err != nil {
			g.sendError(w, r, err)
			return
		}
		dream = d
	}

	text, err := g.transcriber.Transcribe(r.Context(), header.Filename, file)
	g.observeGeneration(r.Context(), "transcription", err)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	resp := TranscriptionResponse{Text: text}
	if dream != nil {
		dream.Transcript = text
		if err := g.store.UpdateDream(r.Context(), dream); err != nil {
			g.sendError(w, r, err)
			return
		}
		g.auditOwned(r, store.AuditUpdateDream, "dream", dream.ID, dream.UserID, map[string]any{"field": "transcript"})
		resp.DreamID = dream.ID
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleGenerateComic renders a comic panel for a dream and stores its URL.
func (g *Gateway) handleGenerateComic(w http.ResponseWriter, r *http.Request) {
	d, ok := g.loadOwnedDream(w, r, "generate media for this dream")
	if !ok {
		return
	}

	var req ComicRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}

	imageURL, err := g.comics.GenerateComic(r.Context(), g.dreamPrompt(d), strings.TrimSpace(req.Style))
	g.observeGeneration(r.Context(), "comic", err)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	d.ComicImageURL = imageURL
	if err := g.store.UpdateDream(r.Context(), d); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.auditOwned(r, store.AuditUpdateDream, "dream", d.ID, d.UserID, map[string]any{"field": "comic_image_url"})
	g.sendDream(w, r, http.StatusOK, d)
}

// handleGenerateVideo starts an asynchronous video job and records a task for polling.
func (g *Gateway) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	d, ok := g.loadOwnedDream(w, r, "generate media for this dream")
	if !ok {
		return
	}

	job, err := g.videos.StartVideo(r.Context(), g.dreamPrompt(d))
	g.observeGeneration(r.Context(), "video", err)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	task := &store.GenerationTask{
		UserID:   d.UserID,
		DreamID:  d.ID,
		Kind:     store.TaskKindVideo,
		RemoteID: job.TaskID,
	}
	applyVideoJob(task, job)
	if err := g.store.CreateGenerationTask(r.Context(), task); err != nil {
		g.sendError(w, r, err)
		return
	}

	g.auditOwned(r, store.AuditStartGenerationTask, "task", task.ID, d.UserID, map[string]any{
		"kind":     task.Kind,
		"dream_id": d.ID,
	})
	g.sendJSON(w, http.StatusAccepted, taskResponse(task))
}

// handleGetGenerationTask returns a task, polling the service first when the
// task is still in flight. A finished video is copied onto its dream.
func (g *Gateway) handleGetGenerationTask(w http.ResponseWriter, r *http.Request) {
	task, err := g.store.GetGenerationTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if err := auth.Authorize(r.Context(), task.UserID, "view this task"); err != nil {
		g.sendError(w, r, err)
		return
	}

	if task.Done() || task.Kind != store.TaskKindVideo {
		g.sendJSON(w, http.StatusOK, taskResponse(task))
		return
	}

	job, err := g.videos.VideoStatus(r.Context(), task.RemoteID)
	g.observeGeneration(r.Context(), "video", err)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	before := *task
	applyVideoJob(task, job)
	if task.Status != before.Status || task.ResultURL != before.ResultURL || task.Error != before.Error {
		if err := g.store.UpdateGenerationTask(r.Context(), task); err != nil {
			g.sendError(w, r, err)
			return
		}
	}

	if task.Status == store.TaskCompleted && task.ResultURL != "" && task.DreamID != "" {
		g.attachVideo(r, task)
	}
	g.sendJSON(w, http.StatusOK, taskResponse(task))
}

func applyVideoJob(task *store.GenerationTask, job *generation.VideoJob) {
	task.Status = generation.NormalizeStatus(job.Status)
	if job.VideoURL != "" {
		task.ResultURL = job.VideoURL
	}
	if task.Status == store.TaskFailed {
		task.Error = job.Error
		if task.Error == "" {
			task.Error = "video generation failed"
		}
	}
}

// attachVideo stores a finished video URL on the task's dream. The dream may
// have been deleted meanwhile, which is not an error for the poller.
func (g *Gateway) attachVideo(r *http.Request, task *store.GenerationTask) {
	d, err := g.store.GetDream(r.Context(), task.DreamID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		g.logger.Warn("loading dream for finished video failed", "task_id", task.ID, "error", err)
		return
	}
	if d.VideoURL == task.ResultURL {
		return
	}
	d.VideoURL = task.ResultURL
	if err := g.store.UpdateDream(r.Context(), d); err != nil {
		g.logger.Warn("storing video url failed", "task_id", task.ID, "dream_id", d.ID, "error", err)
		return
	}
	g.auditOwned(r, store.AuditUpdateDream, "dream", d.ID, d.UserID, map[string]any{
		"field":   "video_url",
		"task_id": task.ID,
	})
}
