// ABOUTME: Transcription, comic and video clients built on the shared service client
// ABOUTME: Each exposes a small interface so handlers can be tested with fakes

package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// ComicGenerator renders a dream as a comic panel image.
type ComicGenerator interface {
	GenerateComic(ctx context.Context, prompt, style string) (string, error)
}

// VideoGenerator starts and polls asynchronous video jobs.
type VideoGenerator interface {
	StartVideo(ctx context.Context, prompt string) (*VideoJob, error)
	VideoStatus(ctx context.Context, taskID string) (*VideoJob, error)
}

// Job statuses after normalization.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// VideoJob is the service's view of a video task.
type VideoJob struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error,omitempty"`
}

// NormalizeStatus maps the vocabulary different video backends use onto
// pending/running/completed/failed. Unknown values are treated as running.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "queued", "pending", "submitted", "created":
		return StatusPending
	case "completed", "complete", "succeeded", "success", "done", "finished":
		return StatusCompleted
	case "failed", "failure", "error", "errored", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// TranscriptionClient talks to the transcription service.
type TranscriptionClient struct {
	c *serviceClient
}

// NewTranscriptionClient creates a TranscriptionClient.
func NewTranscriptionClient(cfg ServiceConfig) *TranscriptionClient {
	return &TranscriptionClient{c: newServiceClient("transcription", cfg)}
}

// Transcribe uploads audio as multipart field "file" and returns the text.
func (t *TranscriptionClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if !t.c.configured() {
		return "", ErrNotConfigured
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating multipart field: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finishing multipart body: %w", err)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := t.c.do(ctx, http.MethodPost, "/transcribe", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// ComicClient talks to the comic generation service.
type ComicClient struct {
	c            *serviceClient
	defaultStyle string
}

// NewComicClient creates a ComicClient. defaultStyle is used when a request
// does not name one.
func NewComicClient(cfg ServiceConfig, defaultStyle string) *ComicClient {
	return &ComicClient{c: newServiceClient("comic", cfg), defaultStyle: defaultStyle}
}

// GenerateComic returns the URL of the generated image.
func (g *ComicClient) GenerateComic(ctx context.Context, prompt, style string) (string, error) {
	if style == "" {
		style = g.defaultStyle
	}
	var out struct {
		ImageURL string `json:"image_url"`
	}
	err := g.c.postJSON(ctx, "/generate", map[string]string{"prompt": prompt, "style": style}, &out)
	if err != nil {
		return "", err
	}
	if out.ImageURL == "" {
		return "", &UpstreamError{Service: "comic", Err: fmt.Errorf("response missing image_url")}
	}
	return out.ImageURL, nil
}

// VideoClient talks to the video generation service.
type VideoClient struct {
	c *serviceClient
}

// NewVideoClient creates a VideoClient.
func NewVideoClient(cfg ServiceConfig) *VideoClient {
	return &VideoClient{c: newServiceClient("video", cfg)}
}

// StartVideo submits a job and returns its remote id and initial status.
func (v *VideoClient) StartVideo(ctx context.Context, prompt string) (*VideoJob, error) {
	var job VideoJob
	if err := v.c.postJSON(ctx, "/videos", map[string]string{"prompt": prompt}, &job); err != nil {
		return nil, err
	}
	if job.TaskID == "" {
		return nil, &UpstreamError{Service: "video", Err: fmt.Errorf("response missing task_id")}
	}
	job.Status = NormalizeStatus(job.Status)
	return &job, nil
}

// VideoStatus polls a previously started job.
func (v *VideoClient) VideoStatus(ctx context.Context, taskID string) (*VideoJob, error) {
	var job VideoJob
	if err := v.c.getJSON(ctx, "/videos/"+url.PathEscape(taskID), &job); err != nil {
		return nil, err
	}
	if job.TaskID == "" {
		job.TaskID = taskID
	}
	job.Status = NormalizeStatus(job.Status)
	return &job, nil
}
