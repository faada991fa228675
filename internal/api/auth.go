package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
)

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// Claims represents the JWT claims accepted by the API. The identity
// provider issues the tokens; this service only validates them and
// derives a stable user identifier.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the unique identifier for the user.
	UserID string `json:"uid,omitempty"`

	// Username is the human-readable username.
	Username string `json:"username,omitempty"`
}

// Identity returns the stable user identifier: the uid claim when
// present, otherwise the subject.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// JWTConfig holds configuration for JWT validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer, when set, is enforced on validated tokens.
	Issuer string
}

// JWTService validates bearer tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	return &JWTService{config: config}, nil
}

// ValidateToken parses and validates a token string and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if s.config.Issuer != "" {
		if claims.Issuer != s.config.Issuer {
			return nil, ErrInvalidToken
		}
	}
	if claims.Identity() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken mints a token for the given user. Intended for tests and
// local development; production tokens come from the identity provider.
func (s *JWTService) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

type contextKey string

const claimsContextKey contextKey = "talktrace.claims"

// ClaimsFromContext returns the authenticated claims stored by the auth
// middleware, or nil outside an authenticated request.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// RequireAuth is the bearer-token middleware for the /api routes. It
// validates the Authorization header and stores the claims in the
// request context.
func (s *JWTService) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			Unauthorized(w, "missing Authorization header")
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			Unauthorized(w, "Authorization header must use the Bearer scheme")
			return
		}

		claims, err := s.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			logger.Debug("token validation failed", logger.KeyError, err)
			Unauthorized(w, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
