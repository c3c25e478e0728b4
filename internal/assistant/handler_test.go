package assistant

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/estate-crm/internal/auth"
)

func chat(h *Handler, caller *auth.Caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ai/chat", bytes.NewBufferString(body))
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	return rec
}

func TestChatHandlerStreamsWithSentinel(t *testing.T) {
	p := &fakeProvider{name: "a", chunks: []string{"Hi", "!"}, failAt: -1}
	h := NewHandler(NewOrchestrator([]Provider{p}, nil, nil), nil)

	rec := chat(h, &testCaller, `{"messages":[{"role":"user","content":"hello"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
	assert.Equal(t, "data: {\"text\":\"Hi\"}\n\ndata: {\"text\":\"!\"}\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestChatHandlerTerminalError(t *testing.T) {
	p := &fakeProvider{name: "a", chunks: []string{"x"}, failAt: 0, err: errors.New("secret upstream body")}
	h := NewHandler(NewOrchestrator([]Provider{p}, nil, nil), nil)

	rec := chat(h, &testCaller, `{"messages":[{"role":"user","content":"hello"}]}`)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.NotContains(t, body, "[DONE]")
	assert.NotContains(t, body, "secret upstream body")
}

func TestChatHandlerRejections(t *testing.T) {
	p := &fakeProvider{name: "a", chunks: []string{"x"}, failAt: -1}
	h := NewHandler(NewOrchestrator([]Provider{p}, staticContext{}, nil), nil)

	assert.Equal(t, http.StatusUnauthorized, chat(h, nil, `{"messages":[{"role":"user","content":"hi"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, chat(h, &testCaller, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, chat(h, &testCaller, `{"messages":[]}`).Code)

	forbidden := NewHandler(NewOrchestrator([]Provider{p}, staticContext{err: ErrForbidden}, nil), nil)
	assert.Equal(t, http.StatusForbidden, chat(forbidden, &testCaller, `{"lead_id":"l","messages":[{"role":"user","content":"hi"}]}`).Code)
}

func TestChatHandlerContentLanguageFromHeader(t *testing.T) {
	p := &fakeProvider{name: "a", chunks: []string{"مرحبا"}, failAt: -1}
	h := NewHandler(NewOrchestrator([]Provider{p}, nil, nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/ai/chat", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hello"}]}`))
	req.Header.Set("Accept-Language", "ar-AE,ar;q=0.9")
	req = req.WithContext(auth.WithCaller(req.Context(), testCaller))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ar", rec.Header().Get("Content-Language"))
}
