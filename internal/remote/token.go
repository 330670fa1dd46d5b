// internal/remote/token.go
package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token attached to back office requests.
// An empty token means the request is sent without authorization.
type TokenSource interface {
	Token() (string, error)
}

// TerminalClaims identify the terminal to the back office
type TerminalClaims struct {
	TerminalID string `json:"terminal_id"`
	StoreID    string `json:"store_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSource mints HS256 terminal tokens and reuses them until shortly
// before they expire.
type JWTSource struct {
	secret     []byte
	ttl        time.Duration
	terminalID string
	storeID    string
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWTSource creates a token source. An empty secret disables auth.
func NewJWTSource(secret string, ttl time.Duration, terminalID, storeID string) *JWTSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTSource{
		secret:     []byte(secret),
		ttl:        ttl,
		terminalID: terminalID,
		storeID:    storeID,
		now:        time.Now,
	}
}

// Token returns a cached token or mints a new one
func (s *JWTSource) Token() (string, error) {
	if len(s.secret) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expires.Add(-s.refreshMargin())) {
		return s.token, nil
	}

	exp := now.Add(s.ttl)
	claims := &TerminalClaims{
		TerminalID: s.terminalID,
		StoreID:    s.storeID,
		Role:       "terminal",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.terminalID,
			Issuer:    "pos-sync-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign terminal token: %w", err)
	}

	s.token = signed
	s.expires = exp
	return signed, nil
}

// ParseTerminalToken validates a terminal token with the shared secret
func ParseTerminalToken(tokenStr, secret string) (*TerminalClaims, error) {
	claims := &TerminalClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid terminal token")
	}
	return claims, nil
}

func (s *JWTSource) refreshMargin() time.Duration {
	margin := s.ttl / 10
	if margin > time.Minute {
		margin = time.Minute
	}
	return margin
}
