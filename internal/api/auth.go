package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "podio-sandbox"

// Claims identify the user and the auth client behind a sandbox access token.
type Claims struct {
	UserID   int    `json:"user_id"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 sandbox access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(tokenIssuer),
		),
	}
}

// Issue returns a signed token for userID acting through clientID.
func (t *TokenIssuer) Issue(userID int, clientID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// TTL is the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Verify parses raw and returns its claims.
func (t *TokenIssuer) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.UserID <= 0 || claims.ClientID == "" {
		return Claims{}, errors.New("token lacks user_id or client_id")
	}
	return claims, nil
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) Claims {
	c, _ := ctx.Value(claimsKey{}).(Claims)
	return c
}

// tokenAuth rejects requests without a valid access token. Both the
// "OAuth2" and "Bearer" schemes are accepted.
func (s *sandbox) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := accessToken(r.Header.Get("Authorization"))
		if !ok {
			s.httpError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			s.httpError(w, http.StatusUnauthorized, "invalid_token", "invalid access token: %v", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func accessToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "oauth2", "bearer":
		return token, true
	}
	return "", false
}
