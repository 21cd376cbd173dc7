// ABOUTME: Classifies a bearer token's unverified payload into platform or local claims
// ABOUTME: Classification only picks a verification branch; it never grants trust

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// IssuerKind identifies which trust root signed a token.
type IssuerKind int

const (
	// IssuerPlatform is the managed identity provider (tokens carry "sub").
	IssuerPlatform IssuerKind = iota + 1
	// IssuerLocal is this gateway's own signer (tokens carry "id" and "email").
	IssuerLocal
)

func (k IssuerKind) String() string {
	switch k {
	case IssuerPlatform:
		return "platform"
	case IssuerLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Claims is the decoded payload of a bearer token. It is either PlatformClaims
// or LocalClaims; the unexported method keeps the set closed.
type Claims interface {
	Issuer() IssuerKind
	SubjectID() string
	isClaims()
}

// PlatformClaims is the payload shape issued by the platform identity provider.
type PlatformClaims struct {
	Subject string
}

func (PlatformClaims) Issuer() IssuerKind   { return IssuerPlatform }
func (c PlatformClaims) SubjectID() string { return c.Subject }
func (PlatformClaims) isClaims()           {}

// LocalClaims is the payload shape issued by TokenIssuer.
type LocalClaims struct {
	ID    string
	Email string
}

func (LocalClaims) Issuer() IssuerKind   { return IssuerLocal }
func (c LocalClaims) SubjectID() string { return c.ID }
func (LocalClaims) isClaims()           {}

// Classify decodes the token payload without checking the signature and decides
// which issuer's format it has. A "sub" claim wins over "id" when both are present;
// that precedence is a convention carried over from the clients, nothing more.
func Classify(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithJSONNumber())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, newError(KindMalformedToken, err)
	}
	return classifyMap(claims)
}

func classifyMap(claims jwt.MapClaims) (Claims, error) {
	if raw, ok := claims["sub"]; ok {
		sub, ok := raw.(string)
		if !ok || sub == "" {
			return nil, newError(KindMalformedToken, errors.New("sub claim must be a non-empty string"))
		}
		return PlatformClaims{Subject: sub}, nil
	}

	if raw, ok := claims["id"]; ok {
		id, err := claimString(raw)
		if err != nil {
			return nil, newError(KindMalformedToken, fmt.Errorf("id claim: %w", err))
		}
		email, _ := claims["email"].(string)
		return LocalClaims{ID: id, Email: email}, nil
	}

	return nil, newError(KindMalformedToken, errors.New("payload has neither sub nor id claim"))
}

// claimString renders an identifier claim that may arrive as a JSON string or number.
func claimString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", errors.New("empty")
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
