package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// DoneSentinel ends every successful stream.
const DoneSentinel = "[DONE]"

// Handler serves POST /ai/chat as Server-Sent Events.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

type chunkFrame struct {
	Text string `json:"text"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Locale == "" {
		req.Locale = r.Header.Get("Accept-Language")
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, err := h.orchestrator.Stream(r.Context(), caller, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyConversation):
			respond.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrForbidden):
			respond.Error(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, ErrLeadNotFound):
			respond.Error(w, http.StatusNotFound, "lead not found")
		case errors.Is(err, ErrNoProviders):
			respond.Error(w, http.StatusServiceUnavailable, "assistant is not configured")
		default:
			h.logger.Error("assistant stream setup failed", "error", err, "caller_id", caller.ID)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Content-Language", string(ResolveLocale(req.Locale)))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			h.logger.Warn("assistant stream failed", "error", chunk.Err, "caller_id", caller.ID)
			msg := "the assistant is unavailable, please try again"
			if errors.Is(chunk.Err, ErrStreamInterrupted) {
				msg = "the reply was interrupted, please try again"
			}
			writeEvent(w, "error", errorFrame{Error: msg})
		case chunk.Done:
			fmt.Fprintf(w, "data: %s\n\n", DoneSentinel)
		default:
			writeEvent(w, "", chunkFrame{Text: chunk.Text})
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
