package helpers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoVerificationKey = errors.New("no JWKS URL or JWT secret configured")

// TokenValidator verifies access tokens against the identity provider's JWKS,
// or against a shared HS256 secret when one is configured.
type TokenValidator struct {
	jwks   *keyfunc.JWKS
	secret []byte
}

// NewTokenValidator fetches the JWKS once and keeps it refreshed in the
// background until Close. A JWKS failure is fatal only when no secret is set.
func NewTokenValidator(ctx context.Context, jwksURL, secret string, logger *slog.Logger) (*TokenValidator, error) {
	v := &TokenValidator{}
	if secret != "" {
		v.secret = []byte(secret)
	}

	if jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Error("Failed to refresh JWKS", "url", jwksURL, "error", err)
			},
		})
		switch {
		case err == nil:
			v.jwks = jwks
		case v.secret != nil:
			logger.Warn("JWKS unavailable, accepting HS256 tokens only", "url", jwksURL, "error", err)
		default:
			return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
		}
	}

	if v.jwks == nil && v.secret == nil {
		return nil, ErrNoVerificationKey
	}
	return v, nil
}

func (v *TokenValidator) keyFor(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if v.secret == nil {
			return nil, errors.New("HS256 tokens are not accepted")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
	}
	return v.jwks.Keyfunc(token)
}

// Validate parses and verifies tokenStr. Tokens must carry an expiry and a subject.
func (v *TokenValidator) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, v.keyFor,
		jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SupabaseJWKSURL is where a Supabase project publishes its signing keys.
func SupabaseJWKSURL(supabaseURL string) string {
	if supabaseURL == "" {
		return ""
	}
	return strings.TrimRight(supabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
}
