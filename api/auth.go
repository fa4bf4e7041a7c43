/*
auth.go - Bearer token authentication for staff endpoints

PURPOSE:
  Staff actions (certificate workflow, audit queries, booking cancellation)
  need an identified actor with a role. The actor comes from an HS256 JWT
  in the Authorization header, issued by the hub's login service.

CLAIMS:
  sub:  staff member ID
  role: admin | super_admin | finance
  name: display name, recorded in audit entries

SEE ALSO:
  - generic/actor.go: Actor, roles, context helpers
  - server.go: which routes sit behind RequireActor
*/
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/warp/hub-engine/generic"
)

type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for actor. The hub's login service does this in
// production; here it serves tooling and tests.
func (a *Authenticator) IssueToken(actor generic.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(actor.Role),
		Name: actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns the actor it names.
func (a *Authenticator) Parse(token string) (generic.Actor, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return generic.Actor{}, fmt.Errorf("%v: %w", err, generic.ErrUnauthorized)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return generic.Actor{}, fmt.Errorf("invalid token: %w", generic.ErrUnauthorized)
	}

	actor := generic.Actor{ID: c.Subject, Name: c.Name, Role: generic.Role(c.Role)}
	if actor.ID == "" {
		return generic.Actor{}, fmt.Errorf("token has no subject: %w", generic.ErrUnauthorized)
	}
	if !actor.Role.Valid() {
		return generic.Actor{}, fmt.Errorf("token role %q unknown: %w", c.Role, generic.ErrUnauthorized)
	}
	return actor, nil
}

// RequireActor rejects requests without a valid bearer token and puts the
// actor on the request context.
func (a *Authenticator) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		actor, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(generic.WithActor(r.Context(), actor)))
	})
}

// actorFrom returns the authenticated actor. Handlers behind RequireActor
// always have one; the error covers misrouted handlers.
func actorFrom(r *http.Request) (generic.Actor, error) {
	actor, ok := generic.ActorFrom(r.Context())
	if !ok {
		return generic.Actor{}, errors.New("no authenticated actor")
	}
	return actor, nil
}
