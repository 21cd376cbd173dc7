// ABOUTME: JWT verification against the platform and local trust roots
// ABOUTME: Also issues locally signed HS256 tokens carrying id and email claims

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	hmacMethods       = []string{"HS256", "HS384", "HS512"}
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
)

// Subject is the result of a successful verification.
type Subject struct {
	ID     string
	Issuer IssuerKind
}

// TokenVerifier defines the interface for token verification.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Subject, error)
}

// VerifierConfig holds the key material for both trust roots. Any of it may be
// empty; a missing root is reported as ServerMisconfigured when a token needs it.
type VerifierConfig struct {
	PlatformSecret []byte
	// PlatformKeys resolves asymmetric platform keys (usually a JWKS keyfunc).
	PlatformKeys jwt.Keyfunc
	LocalSecret  []byte
	Leeway       time.Duration
}

// Verifier implements TokenVerifier for the two issuers.
type Verifier struct {
	platformSecret []byte
	platformKeys   jwt.Keyfunc
	localSecret    []byte
	leeway         time.Duration
}

// NewVerifier creates a Verifier from the given key material.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		platformSecret: cfg.PlatformSecret,
		platformKeys:   cfg.PlatformKeys,
		localSecret:    cfg.LocalSecret,
		leeway:         cfg.Leeway,
	}
}

// Verify classifies the token and checks its signature against exactly one trust root.
func (v *Verifier) Verify(ctx context.Context, token string) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}

	claims, err := Classify(token)
	if err != nil {
		return Subject{}, err
	}

	switch c := claims.(type) {
	case PlatformClaims:
		return v.verifyPlatform(token)
	case LocalClaims:
		return v.verifyLocal(token)
	default:
		return Subject{}, newError(KindMalformedToken, fmt.Errorf("unhandled claims type %T", c))
	}
}

func (v *Verifier) verifyPlatform(token string) (Subject, error) {
	if len(v.platformSecret) == 0 && v.platformKeys == nil {
		return Subject{}, newError(KindServerMisconfigured, errors.New("platform signing secret not configured"))
	}

	var methods []string
	if len(v.platformSecret) > 0 {
		methods = append(methods, hmacMethods...)
	}
	if v.platformKeys != nil {
		methods = append(methods, asymmetricMethods...)
	}

	verified, err := v.parse(token, methods, v.platformKey)
	if err != nil {
		return Subject{}, err
	}

	claims, err := classifyMap(verified)
	if err != nil {
		return Subject{}, err
	}
	pc, ok := claims.(PlatformClaims)
	if !ok {
		return Subject{}, newError(KindInvalidOrExpiredToken, errors.New("verified payload is not platform-shaped"))
	}
	return Subject{ID: pc.Subject, Issuer: IssuerPlatform}, nil
}

func (v *Verifier) platformKey(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
		return v.platformSecret, nil
	}
	return v.platformKeys(t)
}

func (v *Verifier) verifyLocal(token string) (Subject, error) {
	if len(v.localSecret) == 0 {
		return Subject{}, newError(KindServerMisconfigured, errors.New("local signing secret not configured"))
	}

	verified, err := v.parse(token, hmacMethods, func(*jwt.Token) (any, error) {
		return v.localSecret, nil
	})
	if err != nil {
		return Subject{}, err
	}

	claims, err := classifyMap(verified)
	if err != nil {
		return Subject{}, err
	}
	lc, ok := claims.(LocalClaims)
	if !ok {
		return Subject{}, newError(KindInvalidOrExpiredToken, errors.New("verified payload is not local-shaped"))
	}
	return Subject{ID: lc.ID, Issuer: IssuerLocal}, nil
}

func (v *Verifier) parse(token string, methods []string, keyFunc jwt.Keyfunc) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithJSONNumber(),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, keyFunc)
	if err != nil {
		return nil, newError(KindInvalidOrExpiredToken, err)
	}
	if !parsed.Valid {
		return nil, newError(KindInvalidOrExpiredToken, errors.New("token not valid"))
	}
	return claims, nil
}

// TokenIssuer signs local tokens with the local secret.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer with the given secret.
func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{secret: secret, now: time.Now}
}

// Issue creates a local token for the identity. The payload never carries "sub",
// so the verifier always routes it to the local trust root.
func (i *TokenIssuer) Issue(id *Identity, expiresIn time.Duration) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, newError(KindServerMisconfigured, errors.New("local signing secret not configured"))
	}
	if id == nil || id.ID == "" {
		return "", time.Time{}, errors.New("identity with an id is required")
	}

	now := i.now()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		"id":    id.ID,
		"email": id.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}
