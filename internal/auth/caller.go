// Package auth resolves the authenticated caller of a request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a caller's privilege level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Elevated reports whether the caller may act on records they do not own.
func (c Caller) Elevated() bool {
	return c.Role == RoleAdmin || c.Role == RoleManager
}

// ErrUnauthenticated is returned when a request carries no valid identity.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Resolver resolves the caller of a request.
type Resolver interface {
	ResolveCaller(r *http.Request) (Caller, error)
}

type ctxKey string

const callerKey ctxKey = "estatecrm.caller"

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && c.ID != ""
}

// Claims are the JWT claims the CRM expects.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTResolver validates HMAC-signed bearer tokens.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// ResolveCaller reads sub and role from the bearer token. Unknown roles fall
// back to agent.
func (j *JWTResolver) ResolveCaller(r *http.Request) (Caller, error) {
	if len(j.secret) == 0 {
		return Caller{}, ErrUnauthenticated
	}
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return Caller{}, ErrUnauthenticated
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return Caller{}, ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Caller{}, ErrUnauthenticated
	}

	role := Role(strings.ToLower(claims.Role))
	switch role {
	case RoleAdmin, RoleManager, RoleAgent:
	default:
		role = RoleAgent
	}
	return Caller{ID: claims.Subject, Role: role}, nil
}

// IssueToken signs a token for the caller. Used by tooling and tests.
func IssueToken(secret string, c Caller, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = c.ID
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: claims, Role: string(c.Role)})
	return token.SignedString([]byte(secret))
}
