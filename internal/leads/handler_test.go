package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/channels/form"
	"github.com/wolfman30/estate-crm/internal/events"
)

const testFormSecret = "form-secret"

type handlerFixture struct {
	handler   *Handler
	repo      *InMemoryRepository
	pipelines *InMemoryPipelineRepository
	router    chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := NewInMemoryRepository()
	pipelines := NewInMemoryPipelineRepository(defaultPipeline())
	h := NewHandler(NewEngine(repo, nil), repo, pipelines,
		channels.NewVerifier(testFormSecret), events.NewMemoryProcessedStore(), nil)

	r := chi.NewRouter()
	r.Post("/webhooks/forms", h.FormWebhook)
	r.Get("/leads/{id}", h.GetLead)
	r.Put("/pipelines/{id}/stages/order", h.ReorderStages)
	return &handlerFixture{handler: h, repo: repo, pipelines: pipelines, router: r}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func signedFormRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/forms", bytes.NewBufferString(body))
	req.Header.Set(channels.SignatureHeader, channels.Sign(testFormSecret, []byte(body)))
	return req
}

func withCaller(req *http.Request, c auth.Caller) *http.Request {
	return req.WithContext(auth.WithCaller(req.Context(), c))
}

func TestFormWebhookCreatesLead(t *testing.T) {
	f := newHandlerFixture(t)
	body := `{"submission_id":"s-1","Full Name":"Ali Hassan","phone":971500000001,"utm_source":"facebook","page":"palm-villas"}`

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	var result IntakeResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.IsNew)
	assert.Equal(t, "Ali Hassan", result.Lead.Name)
	assert.Equal(t, "971500000001", result.Lead.Phone)
	assert.Equal(t, "facebook", result.Lead.Provenance.UTMSource)
	assert.Equal(t, "palm-villas", result.Lead.Provenance.PageSlug)
}

func TestFormWebhookDuplicateSubmission(t *testing.T) {
	f := newHandlerFixture(t)
	body := `{"submission_id":"s-2","name":"Sara","email":"sara@example.com"}`

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(body))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(body))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.JSONEq(t, `{"duplicate":true}`, string(env.Data))

	all, _ := f.repo.List(context.Background(), ListFilter{})
	assert.Len(t, all, 1)
}

func TestFormWebhookRejectedSubmissionCanBeResent(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"submission_id":"s-9","name":"Omar"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"submission_id":"s-9","name":"Omar","email":"omar@example.com"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "duplicate")
}

func TestFormWebhookMergesExistingLead(t *testing.T) {
	f := newHandlerFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"name":"Sara","email":"sara@example.com"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"name":"Sara","email":"SARA@example.com","budget":"3M"}`))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFormWebhookRejectsBadSignature(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/forms", bytes.NewBufferString(`{"name":"Ali","phone":"1"}`))
	req.Header.Set(channels.SignatureHeader, "sha256=deadbeef")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/forms", bytes.NewBufferString(`{"name":"Ali","phone":"1"}`))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFormWebhookValidation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"phone":"971500000001"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`{"name":"No Contact"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "phone or email is required")

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, signedFormRequest(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid submission")
	assert.NotContains(t, rec.Body.String(), "name is required")
}

func TestValidationMessages(t *testing.T) {
	msg, ok := validationMessage(fmt.Errorf("intake: %w", ErrInvalidName))
	assert.True(t, ok)
	assert.Equal(t, "name is required", msg)

	msg, ok = validationMessage(ErrMissingContact)
	assert.True(t, ok)
	assert.Equal(t, "phone or email is required", msg)

	_, ok = validationMessage(errors.New("db down"))
	assert.False(t, ok)
}

func TestContactFromSubmissionSheetSource(t *testing.T) {
	c := ContactFromSubmission(formSubmission("sheet"))
	assert.Equal(t, SourceSheet, c.Source)
	assert.Equal(t, "sheet", c.Provenance.MarketingChannel)

	c = ContactFromSubmission(formSubmission("google_ads"))
	assert.Equal(t, SourceForm, c.Source)
	assert.Equal(t, "google_ads", c.Provenance.MarketingChannel)
}

func TestGetLeadOwnership(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &Lead{ID: "lead-1", Name: "Ali", Phone: "971500000001", AssignedTo: "agent-1"}))

	cases := []struct {
		name   string
		caller *auth.Caller
		id     string
		want   int
	}{
		{"owner", &auth.Caller{ID: "agent-1", Role: auth.RoleAgent}, "lead-1", http.StatusOK},
		{"other agent", &auth.Caller{ID: "agent-2", Role: auth.RoleAgent}, "lead-1", http.StatusForbidden},
		{"manager", &auth.Caller{ID: "mgr-1", Role: auth.RoleManager}, "lead-1", http.StatusOK},
		{"missing", &auth.Caller{ID: "admin-1", Role: auth.RoleAdmin}, "nope", http.StatusNotFound},
		{"anonymous", nil, "lead-1", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/leads/"+tc.id, nil)
			if tc.caller != nil {
				req = withCaller(req, *tc.caller)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCanAccessUnassignedLead(t *testing.T) {
	lead := &Lead{ID: "l"}
	assert.False(t, CanAccess(auth.Caller{ID: "agent-1", Role: auth.RoleAgent}, lead))
	assert.True(t, CanAccess(auth.Caller{ID: "admin", Role: auth.RoleAdmin}, lead))
}

func TestReorderStagesHandler(t *testing.T) {
	f := newHandlerFixture(t)
	admin := auth.Caller{ID: "admin-1", Role: auth.RoleAdmin}

	req := withCaller(httptest.NewRequest(http.MethodPut, "/pipelines/pl-sales/stages/order",
		bytes.NewBufferString(`{"stage_ids":["st-contacted","st-new"]}`)), admin)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p Pipeline
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &p))
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "st-contacted", p.Stages[0].ID)
	assert.Equal(t, 0, p.Stages[0].Order)
	assert.Equal(t, "st-new", p.Stages[1].ID)
	assert.Equal(t, 1, p.Stages[1].Order)
}

func TestReorderStagesHandlerErrors(t *testing.T) {
	f := newHandlerFixture(t)
	admin := auth.Caller{ID: "admin-1", Role: auth.RoleAdmin}
	agent := auth.Caller{ID: "agent-1", Role: auth.RoleAgent}

	cases := []struct {
		name   string
		caller auth.Caller
		path   string
		body   string
		want   int
	}{
		{"agent forbidden", agent, "/pipelines/pl-sales/stages/order", `{"stage_ids":["st-new","st-contacted"]}`, http.StatusForbidden},
		{"unknown pipeline", admin, "/pipelines/nope/stages/order", `{"stage_ids":[]}`, http.StatusNotFound},
		{"missing stage", admin, "/pipelines/pl-sales/stages/order", `{"stage_ids":["st-new"]}`, http.StatusBadRequest},
		{"duplicate stage", admin, "/pipelines/pl-sales/stages/order", `{"stage_ids":["st-new","st-new"]}`, http.StatusBadRequest},
		{"bad body", admin, "/pipelines/pl-sales/stages/order", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withCaller(httptest.NewRequest(http.MethodPut, tc.path, bytes.NewBufferString(tc.body)), tc.caller)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	p, err := f.pipelines.GetPipeline(context.Background(), "pl-sales")
	require.NoError(t, err)
	assert.Equal(t, "st-new", p.Stages[0].ID, "failed reorders leave the order untouched")
}

func formSubmission(channel string) form.Submission {
	return form.Submission{Name: "Ali", Phone: "971500000001", Channel: channel}
}
