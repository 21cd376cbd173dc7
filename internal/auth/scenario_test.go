// ABOUTME: End-to-end scenario tests for auth using real SQLite
// ABOUTME: Validates the full token-to-identity flow without any mocking

package auth

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/dream-gateway/internal/store"
)

// createTestStore creates a real SQLite store in a temp directory.
func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScenario_IssueThenAuthenticate(t *testing.T) {
	// 1. Real store with one user
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.CreateUser(ctx, &store.User{ID: "dreamer-1", Email: "dreamer@example.com", DisplayName: "Dreamer"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	// 2. A platform-authenticated caller exchanges their token for a local one
	a := NewAuthenticator(testVerifier(), NewResolver(s), nil)
	platform := signHS256(t, testPlatformSecret, jwt.MapClaims{"sub": "dreamer-1", "exp": time.Now().Add(time.Hour).Unix()})
	id, err := a.Authenticate(ctx, "Bearer "+platform)
	if err != nil {
		t.Fatalf("Authenticate(platform) error = %v", err)
	}
	if id.Issuer != IssuerPlatform || id.DisplayName != "Dreamer" {
		t.Errorf("platform identity = %+v", id)
	}

	local, _, err := NewTokenIssuer(testLocalSecret).Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 3. The local token resolves to the same record
	rec := serve(a.Strict()(identityEcho), "Bearer "+local)
	if rec.Code != http.StatusOK || rec.Body.String() != "dreamer-1/local" {
		t.Fatalf("strict with local token: %d %q", rec.Code, rec.Body.String())
	}

	// 4. Once the store is gone, the same token is a server fault
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rec = serve(a.Strict()(identityEcho), "Bearer "+local)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("strict after close: status = %d, want 500", rec.Code)
	}
}

func TestScenario_DeletedUserLosesAccess(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := NewAuthenticator(testVerifier(), NewResolver(s), nil)
	token := signHS256(t, testLocalSecret, jwt.MapClaims{"id": "never-created"})

	// A correctly signed token for a user that does not exist is indistinguishable
	// from a bad token.
	rec := serve(a.Strict()(identityEcho), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorMessage(t, rec); got != "Invalid or expired token" {
		t.Errorf("message = %q", got)
	}

	if err := s.CreateUser(ctx, &store.User{ID: "never-created", Email: "late@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	rec = serve(a.Strict()(identityEcho), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Errorf("status after creating user = %d, want 200", rec.Code)
	}
}
