// Package auth issues and verifies the HMAC-signed bearer tokens that guard
// the catalog's mutating routes.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/annachatkara/moviedb/internal/common"
)

// Claims are the registered claims plus an optional user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
}

// GenerateToken signs an HS256 token for subject. A non-positive validity
// issues a token without an expiry.
func GenerateToken(subject string, secretKey []byte, validity time.Duration) (string, error) {
	if len(secretKey) == 0 {
		return "", fmt.Errorf("%w: empty secret", common.ErrInvalidArgument)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		UserID: subject,
	}
	if validity > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(validity))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// ParseToken verifies signature, method and expiry. Every failure wraps
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header value, or "" when there is none.
func ExtractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type claimsKey struct{}

// ContextWithClaims stores verified claims on ctx.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
