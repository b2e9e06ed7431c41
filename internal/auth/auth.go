// Package auth authenticates API bearer tokens and checks their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scopes understood by the API. A ":rw" scope implies the matching ":ro".
const (
	ScopeAll       = "*"
	ScopePluginsRO = "plugins:ro"
	ScopeAgentsRO  = "agents:ro"
	ScopeAgentsRW  = "agents:rw"
	ScopeEventsRO  = "events:ro"
	ScopeJournalRO = "journal:ro"
)

var knownScopes = map[string]bool{
	ScopeAll:       true,
	ScopePluginsRO: true,
	ScopeAgentsRO:  true,
	ScopeAgentsRW:  true,
	ScopeEventsRO:  true,
	ScopeJournalRO: true,
}

// ErrUnknownScope is wrapped by ValidateScopes.
var ErrUnknownScope = errors.New("unknown scope")

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller.
type Principal struct {
	Admin  bool
	Scopes map[string]struct{}
}

// Has reports whether p is an admin or holds any of required.
func (p Principal) Has(required ...string) bool {
	if p.Admin || len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ValidateScopes rejects blank or unrecognised scope names.
func ValidateScopes(scopes []string) error {
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if !knownScopes[s] {
			return fmt.Errorf("%w %q", ErrUnknownScope, s)
		}
	}
	return nil
}

// ExtractBearerToken reads the token from an Authorization: Bearer header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

type credential struct {
	token     []byte
	principal Principal
}

// Authenticator resolves presented bearer tokens to principals. Scopes are
// expanded once at construction.
type Authenticator struct {
	creds []credential
}

// NewAuthenticator builds an authenticator from the legacy admin key (may be
// empty) and scoped tokens. Tokens with an empty value are ignored.
func NewAuthenticator(adminKey string, tokens []TokenConfig) *Authenticator {
	a := &Authenticator{}
	if adminKey != "" {
		a.creds = append(a.creds, credential{token: []byte(adminKey), principal: Principal{Admin: true}})
	}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		a.creds = append(a.creds, credential{
			token:     []byte(t.Token),
			principal: Principal{Scopes: expandScopes(t.Scopes)},
		})
	}
	return a
}

// Authenticate returns the principal for presented. Every credential is
// compared so the time taken does not depend on which one matched.
func (a *Authenticator) Authenticate(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	var (
		found Principal
		ok    bool
	)
	p := []byte(presented)
	for _, c := range a.creds {
		if subtle.ConstantTimeCompare(p, c.token) == 1 && !ok {
			found, ok = c.principal, true
		}
	}
	return found, ok
}

func expandScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)*2)
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		if resource, ok := strings.CutSuffix(s, ":rw"); ok {
			out[resource+":ro"] = struct{}{}
		}
	}
	return out
}
