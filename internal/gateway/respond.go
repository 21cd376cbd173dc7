// ABOUTME: JSON response envelope shared by every API handler
// ABOUTME: Maps domain and auth errors to status codes; stacks only outside production

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/generation"
	"github.com/2389/dream-gateway/internal/store"
)

// maxJSONBody caps request bodies decoded as JSON.
const maxJSONBody = 1 << 20

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// sendJSON writes a success envelope.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data}); err != nil {
		g.logger.Debug("writing response failed", "error", err)
	}
}

// sendJSONError writes a failure envelope. message must already be client-safe.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	body := errorBody{Message: message}
	if !g.config.IsProduction() {
		body.Stack = string(debug.Stack())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorEnvelope{Success: false, Error: body}); err != nil {
		g.logger.Debug("writing error response failed", "error", err)
	}
}

// writeAuthError adapts sendJSONError to auth.ErrorWriter.
func (g *Gateway) writeAuthError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	g.sendJSONError(w, status, message)
}

// sendError maps err to a status and a client-safe message and writes it.
// Unexpected errors are logged with the request path and reported as 500.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}

	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", auth.UserIDFromContext(r.Context()),
			"error", err,
		)
	}
	g.sendJSONError(w, status, message)
}

func errorStatus(err error) (int, string) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		if authErr.Kind.ServerCaused() {
			return http.StatusInternalServerError, "Internal server error"
		}
		msg := authErr.Message
		if msg == "" {
			msg = http.StatusText(authErr.StatusCode())
		}
		return authErr.StatusCode(), msg
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, store.ErrAlreadyCanceled):
		return http.StatusConflict, "Subscription is already canceled"
	case errors.Is(err, generation.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Generation service is not configured"
	case errors.Is(err, generation.ErrUpstream):
		return http.StatusBadGateway, "Generation service failed"
	case errors.Is(err, errBadRequest):
		var br *badRequestError
		if errors.As(err, &br) {
			return http.StatusBadRequest, br.msg
		}
		return http.StatusBadRequest, "Bad request"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

var errBadRequest = errors.New("bad request")

// badRequestError carries a client-facing validation message.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }
func (e *badRequestError) Is(target error) bool {
	return target == errBadRequest
}

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// decodeJSON decodes a bounded JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
// An empty body, chunked or not, leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("Invalid JSON body")
	}
	return nil
}
