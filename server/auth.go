// ABOUTME: Request authentication with static shared-token and JWT/JWKS bearer modes.
// ABOUTME: Resolves each request to an identity; stream clients may pass token and user via query.
package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/2389-research/huddle/hub"
)

var (
	errMissingAuthorization = errors.New("missing authorization")
	errBadAuthorization     = errors.New("bad authorization")
	errMissingUser          = errors.New("missing user identity; set the X-Huddle-User header or user query parameter")
)

// Authenticator resolves HTTP requests to identities. Three modes:
//
//   - open: no credentials checked; callers self-identify. Only reachable on
//     loopback binds, which ConfigFromEnv enforces.
//   - static: one shared bearer token compared in constant time. The token
//     names the team, not the person, so callers still self-identify.
//   - jwt: RS256 bearer tokens verified against a JWKS endpoint; identity
//     comes from the token claims.
//
// EventSource clients cannot set headers, so the bearer may also ride the
// "token" query parameter and the user name the "user" parameter.
type Authenticator struct {
	token    string
	jwks     *keyfunc.JWKS
	audience string
	issuer   string
	parser   *jwt.Parser
}

// NewOpenAuthenticator trusts every caller and takes identity from the
// request itself.
func NewOpenAuthenticator() *Authenticator {
	return &Authenticator{}
}

// NewStaticAuthenticator requires the shared token on every request.
func NewStaticAuthenticator(token string) *Authenticator {
	return &Authenticator{token: token}
}

// NewJWTAuthenticator verifies RS256 bearer tokens against the given JWKS.
// Audience and issuer checks are skipped when the corresponding value is
// empty.
func NewJWTAuthenticator(jwks *keyfunc.JWKS, audience, issuer string) *Authenticator {
	return &Authenticator{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// IdentityFromRequest authenticates r and returns the caller's identity.
func (a *Authenticator) IdentityFromRequest(r *http.Request) (hub.Identity, error) {
	raw := bearerFromRequest(r)

	if a.jwks != nil {
		return a.identityFromJWT(raw)
	}

	if a.token != "" {
		if raw == "" {
			return hub.Identity{}, errMissingAuthorization
		}
		if subtle.ConstantTimeCompare([]byte(raw), []byte(a.token)) != 1 {
			return hub.Identity{}, errBadAuthorization
		}
	}

	return selfIdentity(r)
}

// bearerFromRequest extracts the bearer credential from the Authorization
// header, falling back to the "token" query parameter for stream clients.
func bearerFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return r.URL.Query().Get("token")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// selfIdentity reads the caller-declared user name used in open and static
// modes.
func selfIdentity(r *http.Request) (hub.Identity, error) {
	user := r.Header.Get("X-Huddle-User")
	if user == "" {
		user = r.URL.Query().Get("user")
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return hub.Identity{}, errMissingUser
	}
	return hub.Identity{UserID: user, Name: user}, nil
}

func (a *Authenticator) identityFromJWT(raw string) (hub.Identity, error) {
	if raw == "" {
		return hub.Identity{}, errMissingAuthorization
	}
	if strings.Count(raw, ".") != 2 {
		return hub.Identity{}, errBadAuthorization
	}

	token, err := a.parser.Parse(raw, a.jwks.Keyfunc)
	if err != nil {
		return hub.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return hub.Identity{}, errors.New("invalid claims")
	}

	// Tokens must stay valid for another minute so they don't lapse while
	// the request is in flight.
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return hub.Identity{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return hub.Identity{}, errors.New("token not valid yet")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return hub.Identity{}, errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return hub.Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return hub.Identity{}, errors.New("missing sub claim")
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}
	return hub.Identity{UserID: sub, Name: name}, nil
}
