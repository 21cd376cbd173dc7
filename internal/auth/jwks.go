// ABOUTME: JWKS-backed key resolution for asymmetric platform tokens
// ABOUTME: Wraps keyfunc so the verifier only sees a jwt.Keyfunc

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// NewJWKSKeyfunc fetches and keeps refreshing the key set at jwksURL.
// The refresh goroutine stops when ctx is canceled.
func NewJWKSKeyfunc(ctx context.Context, jwksURL string) (jwt.Keyfunc, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return kf.Keyfunc, nil
}

// NewStaticJWKSKeyfunc builds a keyfunc from a JSON key set held in memory.
func NewStaticJWKSKeyfunc(raw []byte) (jwt.Keyfunc, error) {
	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing jwks: %w", err)
	}
	return kf.Keyfunc, nil
}
