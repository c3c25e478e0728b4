package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/channels/form"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	engine    *Engine
	repo      Repository
	pipelines PipelineRepository
	verifier  channels.Verifier
	deduper   events.Deduper
	logger    *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(engine *Engine, repo Repository, pipelines PipelineRepository, verifier channels.Verifier, deduper events.Deduper, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:    engine,
		repo:      repo,
		pipelines: pipelines,
		verifier:  verifier,
		deduper:   deduper,
		logger:    logger,
	}
}

// FormWebhook handles POST /webhooks/forms from web forms and sheet scripts.
func (h *Handler) FormWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := h.verifier.ReadVerifiedBody(r)
	if err != nil {
		if errors.Is(err, channels.ErrInvalidSignature) {
			h.logger.Warn("form webhook signature rejected", "remote_ip", r.RemoteAddr)
			respond.Error(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		respond.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	sub, err := form.ParseSubmission(body)
	if err != nil {
		h.logger.Info("form submission rejected", "error", err)
		msg := "invalid submission"
		if errors.Is(err, form.ErrMissingName) {
			msg = "name is required"
		}
		respond.Error(w, http.StatusBadRequest, msg)
		return
	}

	claimed := false
	if sub.ID != "" && h.deduper != nil {
		ok, err := h.deduper.MarkProcessed(r.Context(), string(channels.ChannelForm), sub.ID)
		if err != nil {
			h.logger.Error("form dedupe claim failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			respond.OK(w, http.StatusOK, map[string]any{"duplicate": true})
			return
		}
		claimed = true
	}

	result, err := h.engine.Intake(r.Context(), ContactFromSubmission(sub))
	if err != nil {
		if claimed {
			h.releaseSubmission(r.Context(), sub.ID)
		}
		if msg, ok := validationMessage(err); ok {
			respond.Error(w, http.StatusBadRequest, msg)
			return
		}
		h.logger.Error("form intake failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	respond.OK(w, status, result)
}

func (h *Handler) releaseSubmission(ctx context.Context, id string) {
	if err := h.deduper.Release(context.WithoutCancel(ctx), string(channels.ChannelForm), id); err != nil {
		h.logger.Warn("form submission release failed", "error", err, "submission_id", id)
	}
}

func validationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidName):
		return "name is required", true
	case errors.Is(err, ErrMissingContact):
		return "phone or email is required", true
	}
	return "", false
}

// ContactFromSubmission maps a parsed form submission to an intake contact.
func ContactFromSubmission(sub form.Submission) Contact {
	source := SourceForm
	if sub.Channel == string(SourceSheet) {
		source = SourceSheet
	}
	return Contact{
		Name:    sub.Name,
		Phone:   sub.Phone,
		Email:   sub.Email,
		Budget:  sub.Budget,
		Message: sub.Message,
		Source:  source,
		Provenance: Provenance{
			CampaignID:       sub.CampaignID,
			UTMSource:        sub.UTMSource,
			UTMMedium:        sub.UTMMedium,
			UTMCampaign:      sub.UTMCampaign,
			UTMTerm:          sub.UTMTerm,
			UTMContent:       sub.UTMContent,
			MarketingChannel: sub.Channel,
			PageSlug:         sub.PageSlug,
		},
	}
}

// GetLead handles GET /leads/{id}. Only the assigned agent or an elevated
// caller may read a lead.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	lead, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			respond.Error(w, http.StatusNotFound, "lead not found")
			return
		}
		h.logger.Error("failed to load lead", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !CanAccess(caller, lead) {
		respond.Error(w, http.StatusForbidden, "forbidden")
		return
	}
	respond.OK(w, http.StatusOK, lead)
}

// CanAccess reports whether caller owns lead or has elevated privilege.
func CanAccess(caller auth.Caller, lead *Lead) bool {
	if caller.Elevated() {
		return true
	}
	return lead.AssignedTo != "" && lead.AssignedTo == caller.ID
}

type reorderRequest struct {
	StageIDs []string `json:"stage_ids"`
}

// ReorderStages handles PUT /pipelines/{id}/stages/order.
func (h *Handler) ReorderStages(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !caller.Elevated() {
		respond.Error(w, http.StatusForbidden, "forbidden")
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pipelineID := chi.URLParam(r, "id")
	if err := h.pipelines.ReorderStages(r.Context(), pipelineID, req.StageIDs); err != nil {
		switch {
		case errors.Is(err, ErrPipelineNotFound):
			respond.Error(w, http.StatusNotFound, "pipeline not found")
		case errors.Is(err, ErrInvalidStageOrder):
			respond.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("stage reorder failed", "error", err, "pipeline_id", pipelineID)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	pipeline, err := h.pipelines.GetPipeline(r.Context(), pipelineID)
	if err != nil {
		h.logger.Error("failed to reload pipeline", "error", err, "pipeline_id", pipelineID)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("pipeline stages reordered", "pipeline_id", pipelineID, "by", caller.ID)
	respond.OK(w, http.StatusOK, pipeline)
}
