package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerContext(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{ID: "agent-1", Role: RoleAgent})
	got, ok := CallerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "agent-1", got.ID)

	_, ok = CallerFromContext(context.Background())
	assert.False(t, ok)

	_, ok = CallerFromContext(WithCaller(context.Background(), Caller{}))
	assert.False(t, ok, "empty caller id is not a caller")
}

func TestElevated(t *testing.T) {
	assert.True(t, Caller{Role: RoleAdmin}.Elevated())
	assert.True(t, Caller{Role: RoleManager}.Elevated())
	assert.False(t, Caller{Role: RoleAgent}.Elevated())
}

func TestJWTResolver(t *testing.T) {
	resolver := NewJWTResolver("s3cret")
	exp := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	token, err := IssueToken("s3cret", Caller{ID: "mgr-1", Role: RoleManager}, exp)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/inbox", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	caller, err := resolver.ResolveCaller(req)
	require.NoError(t, err)
	assert.Equal(t, Caller{ID: "mgr-1", Role: RoleManager}, caller)

	t.Run("unknown role falls back to agent", func(t *testing.T) {
		token, _ := IssueToken("s3cret", Caller{ID: "x", Role: "superuser"}, exp)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		caller, err := resolver.ResolveCaller(req)
		require.NoError(t, err)
		assert.Equal(t, RoleAgent, caller.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _ := IssueToken("other", Caller{ID: "x", Role: RoleAdmin}, exp)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, err := resolver.ResolveCaller(req)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		token, _ := IssueToken("s3cret", Caller{ID: "x"}, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, err := resolver.ResolveCaller(req)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := resolver.ResolveCaller(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unconfigured secret", func(t *testing.T) {
		_, err := NewJWTResolver("").ResolveCaller(req)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}
