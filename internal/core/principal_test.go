package core

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestCanAccessClient(t *testing.T) {
	p := Principal{ClientID: "client-a"}
	require.True(t, p.CanAccessClient("client-a"))
	require.False(t, p.CanAccessClient("client-b"))

	super := Principal{SuperAdmin: true}
	require.True(t, super.CanAccessClient("anything"))

	anon := Principal{}
	require.False(t, anon.CanAccessClient("client-a"))
}

func TestDecodePrincipal(t *testing.T) {
	claims := map[string]any{
		"sub":         "user-1",
		"role":        "analyst",
		"clientId":    "client-a",
		"superAdmin":  false,
		"departments": []any{"facilities", "logistics"},
		"locations":   []any{"sf"},
	}
	p := DecodePrincipal(claims)
	require.Equal(t, "user-1", p.ID)
	require.Equal(t, "analyst", p.Role)
	require.Equal(t, "client-a", p.ClientID)
	require.False(t, p.SuperAdmin)
	require.Equal(t, []string{"facilities", "logistics"}, p.Departments)
	require.Equal(t, []string{"sf"}, p.Locations)
}

func TestParsePrincipalTokenRoundTrip(t *testing.T) {
	key := []byte("test-signing-key")
	claims := jwt.MapClaims{
		"sub":        "user-2",
		"role":       "admin",
		"clientId":   "client-b",
		"superAdmin": true,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	p, err := ParsePrincipalToken(signed, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	require.NoError(t, err)
	require.Equal(t, "user-2", p.ID)
	require.Equal(t, "admin", p.Role)
	require.Equal(t, "client-b", p.ClientID)
	require.True(t, p.SuperAdmin)
}

func TestParsePrincipalTokenRejectsBadSignature(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-3"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("right-key"))
	require.NoError(t, err)

	_, err = ParsePrincipalToken(signed, func(*jwt.Token) (interface{}, error) {
		return []byte("wrong-key"), nil
	})
	require.Error(t, err)
}

func TestCheckClientAccess(t *testing.T) {
	ctx := context.Background()

	// No principal attached: internal call, passes.
	require.NoError(t, CheckClientAccess(ctx, "client-a"))

	scoped := WithPrincipal(ctx, Principal{ID: "u1", ClientID: "client-a"})
	require.NoError(t, CheckClientAccess(scoped, "client-a"))

	err := CheckClientAccess(scoped, "client-b")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrClientScope)
	require.Equal(t, KindValidation, KindOf(err))

	super := WithPrincipal(ctx, Principal{ID: "root", SuperAdmin: true})
	require.NoError(t, CheckClientAccess(super, "client-b"))
}
