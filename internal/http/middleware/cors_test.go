package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/ai/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "authorization, accept-language")
	}
	rec := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsDashboardOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://crm.estatecrm.test/"}, http.MethodPost, "https://crm.estatecrm.test", false)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://crm.estatecrm.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Accept-Language")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Language")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
	assert.Equal(t, []string{"Origin"}, rec.Header().Values("Vary"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://crm.estatecrm.test"}, http.MethodGet, "https://phishing.test", false)

	assert.True(t, called, "the API still answers; the browser enforces the missing header")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSWildcardSubdomains(t *testing.T) {
	origins := []string{"https://*.preview.estatecrm.test"}

	rec, _ := corsRequest(t, origins, http.MethodGet, "https://pr-118.preview.estatecrm.test", false)
	assert.Equal(t, "https://pr-118.preview.estatecrm.test", rec.Header().Get("Access-Control-Allow-Origin"))

	for _, origin := range []string{
		"http://pr-118.preview.estatecrm.test",
		"https://preview.estatecrm.test",
		"https://evilpreview.estatecrm.test.attacker.test",
	} {
		rec, _ = corsRequest(t, origins, http.MethodGet, origin, false)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://random.example", false)
	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://crm.estatecrm.test"}, http.MethodOptions, "https://crm.estatecrm.test", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	rec, called = corsRequest(t, []string{"https://crm.estatecrm.test"}, http.MethodOptions, "https://phishing.test", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSSkipsSameOriginRequests(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://crm.estatecrm.test"}, http.MethodGet, "", false)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Vary"))
}
