package calls

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/calls/telephony"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// Handler serves call placement and provider callbacks.
type Handler struct {
	manager       *Manager
	webhookSecret string
	logger        *logging.Logger
}

func NewHandler(manager *Manager, webhookSecret string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, webhookSecret: webhookSecret, logger: logger}
}

// PlaceCall handles POST /calls.
func (h *Handler) PlaceCall(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, err := h.manager.Place(r.Context(), caller, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			respond.Error(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, ErrLeadNotFound):
			respond.Error(w, http.StatusNotFound, "lead not found")
		case errors.Is(err, ErrInvalidPhone):
			respond.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrPlacementFailed):
			respond.Error(w, http.StatusBadGateway, "call could not be placed")
		case errors.Is(err, ErrPlacerNotEnabled):
			respond.Error(w, http.StatusServiceUnavailable, "calling is not configured")
		default:
			h.logger.Error("place call failed", "error", err, "caller_id", caller.ID)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respond.OK(w, http.StatusCreated, call)
}

// Callback handles POST /webhooks/telephony/calls.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !telephony.VerifyCallback(h.webhookSecret, body, r.Header.Get(telephony.SignatureHeader)) {
		h.logger.Warn("telephony callback signature rejected", "remote_ip", r.RemoteAddr)
		respond.Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	cb, err := telephony.ParseCallback(body)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid callback")
		return
	}
	state := cb.State()
	if state == "" {
		respond.OK(w, http.StatusOK, map[string]any{"applied": false})
		return
	}

	call, applied, err := h.manager.ApplyCallback(r.Context(), cb.ExternalID(), Status(state))
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			respond.Error(w, http.StatusNotFound, "call not found")
			return
		}
		h.logger.Error("apply call callback failed", "error", err, "external_call_id", cb.ExternalID())
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond.OK(w, http.StatusOK, map[string]any{"applied": applied, "status": call.Status})
}
