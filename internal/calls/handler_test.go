package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/calls/telephony"
)

const testCallbackSecret = "cb-secret"

func postPlace(h *Handler, caller *auth.Caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calls", bytes.NewBufferString(body))
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	h.PlaceCall(rec, req)
	return rec
}

func postCallback(h *Handler, body string, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony/calls", bytes.NewBufferString(body))
	if signed {
		req.Header.Set(telephony.SignatureHeader, telephony.SignCallback(testCallbackSecret, []byte(body)))
	}
	rec := httptest.NewRecorder()
	h.Callback(rec, req)
	return rec
}

func TestPlaceCallHandlerStatuses(t *testing.T) {
	m, _, _ := newTestManager(t, &stubPlacer{id: "ext-1"})
	h := NewHandler(m, testCallbackSecret, nil)

	assert.Equal(t, http.StatusCreated, postPlace(h, &agent, `{"lead_id":"lead-1"}`).Code)
	assert.Equal(t, http.StatusForbidden, postPlace(h, &other, `{"lead_id":"lead-1"}`).Code)
	assert.Equal(t, http.StatusNotFound, postPlace(h, &agent, `{"lead_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postPlace(h, &manager, `{"phone_number":"n/a"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postPlace(h, &agent, `{`).Code)
	assert.Equal(t, http.StatusUnauthorized, postPlace(h, nil, `{"lead_id":"lead-1"}`).Code)
}

func TestPlaceCallHandlerProviderFailure(t *testing.T) {
	m, _, _ := newTestManager(t, &stubPlacer{err: errors.New("upstream secret detail")})
	h := NewHandler(m, testCallbackSecret, nil)

	rec := postPlace(h, &agent, `{"lead_id":"lead-1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestCallbackHandler(t *testing.T) {
	m, store, _ := newTestManager(t, &stubPlacer{id: "ext-1"})
	h := NewHandler(m, testCallbackSecret, nil)
	placed, err := m.Place(context.Background(), agent, PlaceRequest{LeadID: "lead-1"})
	require.NoError(t, err)

	rec := postCallback(h, `{"call_id":"ext-1","event":"NOTIFY_ANSWER"}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env struct {
		Data struct {
			Applied bool   `json:"applied"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Data.Applied)
	assert.Equal(t, "ANSWERED", env.Data.Status)

	rec = postCallback(h, `{"call_id":"ext-1","event":"NOTIFY_END","disposition":"answered"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := store.Get(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	assert.Equal(t, http.StatusUnauthorized, postCallback(h, `{"call_id":"ext-1","event":"NOTIFY_START"}`, false).Code)
	assert.Equal(t, http.StatusBadRequest, postCallback(h, `{"event":"NOTIFY_START"}`, true).Code)
	assert.Equal(t, http.StatusOK, postCallback(h, `{"call_id":"ext-1","event":"NOTIFY_RECORD"}`, true).Code)
	assert.Equal(t, http.StatusNotFound, postCallback(h, `{"call_id":"ghost","event":"NOTIFY_ANSWER"}`, true).Code)
}
