package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"veloz/internal/reqctx"
)

type ctxKey int

const reqctxKey ctxKey = 0

// authConfig holds the minimal material the auth stub needs: a symmetric
// JWT signing key and a static table of API keys to user ids. Real
// validation (issuer checks, key rotation, revocation) is out of scope
// (spec.md §1) — only the contract of producing an AuthInfo is implemented.
type authConfig struct {
	jwtSecret []byte
	apiKeys   map[string]string // key -> user id
}

// authMiddleware populates reqctx.Context.Auth from either a bearer JWT or
// an API key header, and attaches the Context to the request for handlers
// to retrieve (spec.md §6 "Absent auth_info ... means unauthenticated").
func authMiddleware(cfg authConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := reqctx.FromRequest(w, r, nil)

			if auth := tryJWT(r, cfg.jwtSecret); auth != nil {
				rc.Auth = auth
			} else if auth := tryAPIKey(r, cfg.apiKeys); auth != nil {
				rc.Auth = auth
			}

			ctx := context.WithValue(r.Context(), reqctxKey, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tryJWT(r *http.Request, secret []byte) *reqctx.AuthInfo {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil
	}

	var perms []string
	if raw, ok := claims["permissions"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
	}

	return &reqctx.AuthInfo{UserID: sub, Method: reqctx.AuthJWT, Permissions: perms}
}

func tryAPIKey(r *http.Request, keys map[string]string) *reqctx.AuthInfo {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return nil
	}
	userID, ok := keys[key]
	if !ok {
		return nil
	}
	return &reqctx.AuthInfo{UserID: userID, Method: reqctx.AuthAPIKey}
}

// reqctxFrom retrieves the Context attached by authMiddleware.
func reqctxFrom(r *http.Request) *reqctx.Context {
	rc, _ := r.Context().Value(reqctxKey).(*reqctx.Context)
	return rc
}
