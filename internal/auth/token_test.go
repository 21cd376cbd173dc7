// ABOUTME: Tests for dual-issuer JWT verification and local token issuing
// ABOUTME: Each token must verify against exactly the trust root its shape selects

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testPlatformSecret = []byte("platform-test-secret-32-bytes!!!")
	testLocalSecret    = []byte("local-test-secret-32-bytes-long!")
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func testVerifier() *Verifier {
	return NewVerifier(VerifierConfig{
		PlatformSecret: testPlatformSecret,
		LocalSecret:    testLocalSecret,
	})
}

func TestVerify_Routing(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		token      string
		wantID     string
		wantIssuer IssuerKind
		wantKind   ErrorKind
	}{
		{
			name:       "platform token with platform secret",
			token:      signHS256(t, testPlatformSecret, jwt.MapClaims{"sub": "p1", "exp": future}),
			wantID:     "p1",
			wantIssuer: IssuerPlatform,
		},
		{
			name:       "local token with local secret",
			token:      signHS256(t, testLocalSecret, jwt.MapClaims{"id": "l1", "email": "l1@example.com", "exp": future}),
			wantID:     "l1",
			wantIssuer: IssuerLocal,
		},
		{
			name:       "local token with numeric id",
			token:      signHS256(t, testLocalSecret, jwt.MapClaims{"id": 42, "exp": future}),
			wantID:     "42",
			wantIssuer: IssuerLocal,
		},
		{
			name:     "platform-shaped token signed with local secret",
			token:    signHS256(t, testLocalSecret, jwt.MapClaims{"sub": "p1", "exp": future}),
			wantKind: KindInvalidOrExpiredToken,
		},
		{
			name:     "local-shaped token signed with platform secret",
			token:    signHS256(t, testPlatformSecret, jwt.MapClaims{"id": "l1", "exp": future}),
			wantKind: KindInvalidOrExpiredToken,
		},
		{
			name:     "sub and id together verify as platform only",
			token:    signHS256(t, testLocalSecret, jwt.MapClaims{"sub": "p1", "id": "l1", "exp": future}),
			wantKind: KindInvalidOrExpiredToken,
		},
		{
			name:     "garbage",
			token:    "not.a.token",
			wantKind: KindMalformedToken,
		},
	}

	v := testVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := v.Verify(context.Background(), tt.token)
			if tt.wantKind != "" {
				if KindOf(err) != tt.wantKind {
					t.Fatalf("Verify() kind = %q, want %q (err = %v)", KindOf(err), tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if subject.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", subject.ID, tt.wantID)
			}
			if subject.Issuer != tt.wantIssuer {
				t.Errorf("Issuer = %v, want %v", subject.Issuer, tt.wantIssuer)
			}
		})
	}
}

func TestVerify_MissingSecrets(t *testing.T) {
	platformTok := signHS256(t, testPlatformSecret, jwt.MapClaims{"sub": "p1"})
	localTok := signHS256(t, testLocalSecret, jwt.MapClaims{"id": "l1"})

	onlyLocal := NewVerifier(VerifierConfig{LocalSecret: testLocalSecret})
	if _, err := onlyLocal.Verify(context.Background(), platformTok); KindOf(err) != KindServerMisconfigured {
		t.Errorf("platform token without platform secret: kind = %q, want %q", KindOf(err), KindServerMisconfigured)
	}
	if _, err := onlyLocal.Verify(context.Background(), localTok); err != nil {
		t.Errorf("local token should still verify: %v", err)
	}

	onlyPlatform := NewVerifier(VerifierConfig{PlatformSecret: testPlatformSecret})
	if _, err := onlyPlatform.Verify(context.Background(), localTok); KindOf(err) != KindServerMisconfigured {
		t.Errorf("local token without local secret: kind = %q, want %q", KindOf(err), KindServerMisconfigured)
	}
}

func TestVerify_Expiry(t *testing.T) {
	expired := signHS256(t, testLocalSecret, jwt.MapClaims{"id": "l1", "exp": time.Now().Add(-10 * time.Second).Unix()})

	if _, err := testVerifier().Verify(context.Background(), expired); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("expired token: kind = %q, want %q", KindOf(err), KindInvalidOrExpiredToken)
	}

	lenient := NewVerifier(VerifierConfig{LocalSecret: testLocalSecret, Leeway: time.Minute})
	if _, err := lenient.Verify(context.Background(), expired); err != nil {
		t.Errorf("token within leeway should verify: %v", err)
	}
}

func TestVerify_Tampered(t *testing.T) {
	token := signHS256(t, testLocalSecret, jwt.MapClaims{"id": "l1"})
	parts := strings.Split(token, ".")

	// Swap the payload for one naming a different user, keeping the old signature.
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"id":"admin"}`))
	tampered := parts[0] + "." + forged + "." + parts[2]

	if _, err := testVerifier().Verify(context.Background(), tampered); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("tampered token: kind = %q, want %q", KindOf(err), KindInvalidOrExpiredToken)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "l1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := testVerifier().Verify(context.Background(), token); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("alg=none token: kind = %q, want %q", KindOf(err), KindInvalidOrExpiredToken)
	}
}

func TestVerify_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token := signHS256(t, testLocalSecret, jwt.MapClaims{"id": "l1"})
	if _, err := testVerifier().Verify(ctx, token); !errors.Is(err, context.Canceled) {
		t.Errorf("Verify() error = %v, want context.Canceled", err)
	}
}

func rsaJWKS(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return raw
}

func TestVerify_PlatformJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	keys, err := NewStaticJWKSKeyfunc(rsaJWKS(t, "k1", &key.PublicKey))
	if err != nil {
		t.Fatalf("NewStaticJWKSKeyfunc() error = %v", err)
	}

	v := NewVerifier(VerifierConfig{PlatformKeys: keys, LocalSecret: testLocalSecret})

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "rsa-user", "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	subject, err := v.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if subject.ID != "rsa-user" || subject.Issuer != IssuerPlatform {
		t.Errorf("Verify() = %+v", subject)
	}

	// Without a platform secret, HMAC platform tokens are not accepted at all.
	hmacTok := signHS256(t, testLocalSecret, jwt.MapClaims{"sub": "rsa-user"})
	if _, err := v.Verify(context.Background(), hmacTok); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("HMAC platform token: kind = %q, want %q", KindOf(err), KindInvalidOrExpiredToken)
	}

	// RSA-signed local tokens never reach the key set.
	localTok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"id": "l1"})
	localTok.Header["kid"] = "k1"
	localSigned, err := localTok.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := v.Verify(context.Background(), localSigned); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("RSA local token: kind = %q, want %q", KindOf(err), KindInvalidOrExpiredToken)
	}
}

func TestNewStaticJWKSKeyfunc_Invalid(t *testing.T) {
	if _, err := NewStaticJWKSKeyfunc([]byte("{")); err == nil {
		t.Error("expected error for malformed key set")
	}
}

func TestNewJWKSKeyfunc_RequiresURL(t *testing.T) {
	if _, err := NewJWKSKeyfunc(context.Background(), ""); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer(testLocalSecret)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	token, expiresAt, err := issuer.Issue(&Identity{ID: "u1", Email: "u1@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !expiresAt.Equal(fixed.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, fixed.Add(time.Hour))
	}

	claims, err := Classify(token)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	lc, ok := claims.(LocalClaims)
	if !ok {
		t.Fatalf("issued token classified as %T, want LocalClaims", claims)
	}
	if lc.ID != "u1" || lc.Email != "u1@example.com" {
		t.Errorf("claims = %+v", lc)
	}

	// The fixed clock is in the past, so the token is expired by now.
	if _, err := testVerifier().Verify(context.Background(), token); KindOf(err) != KindInvalidOrExpiredToken {
		t.Errorf("expired issued token: kind = %q", KindOf(err))
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	token, _, err := NewTokenIssuer(testLocalSecret).Issue(&Identity{ID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	subject, err := testVerifier().Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if subject.ID != "u1" || subject.Issuer != IssuerLocal {
		t.Errorf("Verify() = %+v", subject)
	}
}

func TestTokenIssuer_Errors(t *testing.T) {
	if _, _, err := NewTokenIssuer(nil).Issue(&Identity{ID: "u1"}, time.Hour); KindOf(err) != KindServerMisconfigured {
		t.Errorf("no secret: kind = %q, want %q", KindOf(err), KindServerMisconfigured)
	}
	if _, _, err := NewTokenIssuer(testLocalSecret).Issue(&Identity{}, time.Hour); err == nil {
		t.Error("expected error for identity without id")
	}
	if _, _, err := NewTokenIssuer(testLocalSecret).Issue(nil, time.Hour); err == nil {
		t.Error("expected error for nil identity")
	}
}
