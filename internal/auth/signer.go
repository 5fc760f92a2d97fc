package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorScope is the scope claim carried by operator API tokens
const OperatorScope = "operator"

type contextKey struct{}

// Signer mints and verifies HS256 tokens with a single shared secret
type Signer struct {
	key []byte
}

// OperatorClaims represents the claims of a token accepted by the operator API
type OperatorClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewSigner creates a signer from a secret
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("signing secret must be at least 16 bytes")
	}
	return &Signer{key: []byte(secret)}, nil
}

// RandomSecret returns a fresh secret for processes that have none configured
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Sign produces a compact token for claims
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Parse validates tokenString and decodes it into claims
func (s *Signer) Parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// MintOperatorToken issues a token for the operator API
func (s *Signer) MintOperatorToken(subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := OperatorClaims{
		Scope: OperatorScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return s.Sign(claims)
}

// ValidateOperatorToken validates an operator API token
func (s *Signer) ValidateOperatorToken(tokenString string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	if err := s.Parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Scope != OperatorScope {
		return nil, fmt.Errorf("invalid token scope: %s", claims.Scope)
	}
	return claims, nil
}

// Middleware creates a middleware for authenticating operator requests
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "Bearer token required", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateOperatorToken(tokenString)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFromContext extracts operator claims from request context
func OperatorFromContext(ctx context.Context) (*OperatorClaims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*OperatorClaims)
	return claims, ok
}
