package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/auth"
	appconfig "github.com/wolfman30/estate-crm/internal/config"
	"github.com/wolfman30/estate-crm/internal/store"
)

const testSecret = "bootstrap-secret"

func buildMemoryApp(t *testing.T) *App {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &appconfig.Config{
		JWTSecret:          testSecret,
		HealthPollEnabled:  true,
		HealthPollInterval: time.Hour,
	}
	app, err := Build(context.Background(), cfg, Deps{Registerer: reg, Gatherer: reg}, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func authed(t *testing.T, method, path, body string, role auth.Role) *http.Request {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.Caller{ID: "user-1", Role: role}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBuildMemoryRegistry(t *testing.T) {
	app := buildMemoryApp(t)

	require.NoError(t, app.Registry.Validate())
	for _, e := range store.Entities {
		assert.True(t, app.Registry.Bound(e), string(e))
	}
	p, err := app.Registry.Pipelines.DefaultPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", p.ID)
	assert.Len(t, p.Stages, 5)

	assert.Nil(t, app.Deliverer, "outbox needs a database")
	assert.NotNil(t, app.Poller)
}

func TestBuildServesHealthAndMetrics(t *testing.T) {
	app := buildMemoryApp(t)

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildWithoutProvidersReportsUnavailable(t *testing.T) {
	app := buildMemoryApp(t)

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, authed(t, http.MethodPost, "/calls", `{"phone_number":"+971500000001"}`, auth.RoleManager))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, authed(t, http.MethodPost, "/ai/chat", `{"messages":[{"role":"user","content":"hi"}]}`, auth.RoleAgent))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunStopsWithContext(t *testing.T) {
	app := buildMemoryApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
