package inbox

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// Handler serves the caller-scoped inbox.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type listResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

// List handles GET /inbox.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgs, err := h.service.List(r.Context(), caller.ID)
	if err != nil {
		h.logger.Error("inbox list failed", "error", err, "caller_id", caller.ID)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	respond.OK(w, http.StatusOK, listResponse{Messages: msgs, Count: len(msgs)})
}

// Send handles POST /inbox/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.service.Send(r.Context(), caller.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrUnsupportedChannel):
			respond.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNoConnectedAccount):
			respond.Error(w, http.StatusConflict, "no connected account for this channel")
		case errors.Is(err, ErrSendFailed):
			respond.Error(w, http.StatusBadGateway, "message could not be delivered")
		default:
			h.logger.Error("inbox send failed", "error", err, "caller_id", caller.ID)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respond.OK(w, http.StatusCreated, msg)
}

// Connect handles POST /inbox/accounts.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := h.service.Connect(r.Context(), caller.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAccount):
			respond.Error(w, http.StatusBadRequest, "account credential could not be verified")
		case errors.Is(err, ErrUnsupportedChannel):
			respond.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("account connect failed", "error", err, "caller_id", caller.ID)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respond.OK(w, http.StatusCreated, account)
}
