// package auth extracts actor identity from requests issued by the
// bookkeeping backend. Authorization policy stays with the backend; this
// middleware only makes the acting user available to the audit handlers.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyActor ctxKey = "audittrail.actor"

// Actor is the identity extracted from a validated bearer token.
type Actor struct {
	// ID is the token subject.
	ID string

	// Name is the denormalized display name snapshot the backend put in
	// the token at issue time.
	Name string

	// AccountID is the owning account the actor operates under.
	AccountID string
}

// FromContext returns the Actor stored in the request context, or nil.
func FromContext(ctx context.Context) *Actor {
	v := ctx.Value(ctxKeyActor)
	if v == nil {
		return nil
	}
	if a, ok := v.(*Actor); ok {
		return a
	}
	return nil
}

// ParseActorToken validates an HS256 token signed with the shared backend
// secret and extracts the actor claims (sub, name, accountId).
func ParseActorToken(tokenStr string, secret []byte) (*Actor, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}

	actor := &Actor{}
	if sub, err := claims.GetSubject(); err == nil {
		actor.ID = sub
	}
	if name, ok := claims["name"].(string); ok {
		actor.Name = name
	}
	if acc, ok := claims["accountId"].(string); ok {
		actor.AccountID = acc
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return actor, nil
}

// NewMiddleware returns an HTTP middleware that extracts the actor from a
// Bearer token into the request context. When require is true, requests
// without a valid token are rejected; otherwise they pass through without
// an actor and handlers fall back to request-body identity fields.
func NewMiddleware(secret string, require bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenStr string
			if authz := r.Header.Get("Authorization"); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					tokenStr = strings.TrimSpace(authz[7:])
				}
			}

			if tokenStr == "" || secret == "" {
				if require {
					http.Error(w, "authentication required", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			actor, err := ParseActorToken(tokenStr, []byte(secret))
			if err != nil {
				if require {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				log.Printf("[auth] ignoring invalid bearer token: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
