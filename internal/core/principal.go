// Package core models the contracts the carbon-accounting data plane shares
// with its external collaborators: the caller's identity, the push
// notification sink, and the document store. None of these are implemented
// here; authentication, the push transport, and the storage engine all
// live outside the core (see the data plane's design notes on scope).
package core

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the pre-authorised caller every core operation receives. The
// core never authenticates or authorizes; it trusts the principal and
// enforces only client-scope isolation.
type Principal struct {
	ID          string
	Role        string
	ClientID    string
	Departments []string
	Locations   []string
	SuperAdmin  bool
}

// CanAccessClient reports whether the principal may operate against the
// given client's streams. Super-admins see every client.
func (p Principal) CanAccessClient(clientID string) bool {
	if p.SuperAdmin {
		return true
	}
	return p.ClientID != "" && p.ClientID == clientID
}

type principalCtxKey struct{}

// WithPrincipal attaches the caller's principal to the context so the data
// plane's entry points can enforce client isolation without widening every
// signature.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom returns the principal attached by WithPrincipal, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

// CheckClientAccess rejects the call when the context carries a principal
// that may not operate against clientID. A context with no principal is an
// internal call (scheduler tick, recomputation fan-out) and passes.
func CheckClientAccess(ctx context.Context, clientID string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil
	}
	if !p.CanAccessClient(clientID) {
		return NewError(KindValidation,
			fmt.Sprintf("principal %q is not scoped to client %q", p.ID, clientID), ErrClientScope)
	}
	return nil
}

// DecodePrincipal builds a Principal from already-verified JWT claims. The
// core does not verify the signature (that happens at the external
// authentication boundary), it only maps verified claims into the shape the
// core understands.
func DecodePrincipal(claims map[string]any) Principal {
	p := Principal{}
	if v, ok := claims["sub"].(string); ok {
		p.ID = v
	}
	if v, ok := claims["role"].(string); ok {
		p.Role = v
	}
	if v, ok := claims["clientId"].(string); ok {
		p.ClientID = v
	}
	if v, ok := claims["superAdmin"].(bool); ok {
		p.SuperAdmin = v
	}
	p.Departments = stringSlice(claims["departments"])
	p.Locations = stringSlice(claims["locations"])
	return p
}

// ParsePrincipalToken verifies a bearer token issued by the external
// authentication collaborator and maps its claims onto a Principal. The
// core does not issue or rotate these tokens; it only needs to trust a
// signature it can check with a key the auth collaborator published.
func ParsePrincipalToken(tokenString string, keyFunc jwt.Keyfunc) (Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil {
		return Principal{}, fmt.Errorf("core: parse principal token: %w", err)
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("core: principal token is not valid")
	}
	return DecodePrincipal(map[string]any(claims)), nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
