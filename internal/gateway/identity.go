package gateway

import (
	"net/http"
	"strings"

	"github.com/attestia/attestia/pkg/types"
)

// Authenticator resolves the caller identity from request credentials.
// Identity is never taken from the request body.
type Authenticator interface {
	// Resolve returns the actor for the request. A zero-value actor means
	// the caller is anonymous.
	Resolve(r *http.Request) types.Actor
}

// TokenAuthenticator maps static bearer tokens to actors. Suitable for
// service-to-service deployments where tokens are issued out of band.
type TokenAuthenticator struct {
	tokens map[string]types.Actor
}

var _ Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator builds an authenticator over a token → actor map.
// The map is copied; later mutation of the argument has no effect.
func NewTokenAuthenticator(tokens map[string]types.Actor) *TokenAuthenticator {
	cp := make(map[string]types.Actor, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &TokenAuthenticator{tokens: cp}
}

// Resolve reads the Authorization header ("Bearer <token>") and looks the
// token up. Unknown or missing tokens resolve to the anonymous actor.
func (a *TokenAuthenticator) Resolve(r *http.Request) types.Actor {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return types.Actor{}
	}
	return a.tokens[token]
}

// HeaderAuthenticator trusts identity headers set by an upstream proxy that
// has already authenticated the caller. Only use behind a trusted ingress
// that strips these headers from external traffic.
type HeaderAuthenticator struct {
	// UserHeader names the header carrying the user id. Default
	// "X-Attestia-User".
	UserHeader string

	// OrgHeader names the header carrying the organization id. Default
	// "X-Attestia-Org".
	OrgHeader string
}

var _ Authenticator = (*HeaderAuthenticator)(nil)

func (a *HeaderAuthenticator) Resolve(r *http.Request) types.Actor {
	userHeader := a.UserHeader
	if userHeader == "" {
		userHeader = "X-Attestia-User"
	}
	orgHeader := a.OrgHeader
	if orgHeader == "" {
		orgHeader = "X-Attestia-Org"
	}
	return types.Actor{
		UserID:         r.Header.Get(userHeader),
		OrganizationID: r.Header.Get(orgHeader),
	}
}

// Chain tries each authenticator in order and returns the first
// non-anonymous identity.
type Chain []Authenticator

var _ Authenticator = (Chain)(nil)

func (c Chain) Resolve(r *http.Request) types.Actor {
	for _, a := range c {
		if actor := a.Resolve(r); !actor.IsAnonymous() {
			return actor
		}
	}
	return types.Actor{}
}
