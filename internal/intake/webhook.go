// Package intake runs verified channel webhooks through normalization, the
// idempotency gate, lead deduplication and the inbox.
package intake

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// DefaultWhatsAppName names WhatsApp leads whose profile carries no name.
const DefaultWhatsAppName = "WhatsApp Contact"

// LeadIntaker deduplicates a contact into a lead.
type LeadIntaker interface {
	Intake(ctx context.Context, c leads.Contact) (leads.IntakeResult, error)
}

// Ingester stores an inbound message.
type Ingester interface {
	Ingest(ctx context.Context, evt channels.InboundEvent, leadID string) (*inbox.Message, bool, error)
}

// Result summarizes one webhook delivery.
type Result struct {
	Received   int `json:"received"`
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
}

// ChannelWebhook handles POST deliveries for a single messaging channel.
type ChannelWebhook struct {
	channel    channels.Channel
	verifier   channels.Verifier
	normalizer channels.Normalizer
	inbox      Ingester
	deduper    events.Deduper
	leads      LeadIntaker
	metrics    *metrics.CRMMetrics
	logger     *logging.Logger
}

func NewChannelWebhook(ch channels.Channel, verifier channels.Verifier, normalizer channels.Normalizer, ingester Ingester, deduper events.Deduper, logger *logging.Logger) *ChannelWebhook {
	if normalizer == nil || ingester == nil || deduper == nil {
		panic("intake: normalizer, ingester and deduper are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelWebhook{
		channel:    ch,
		verifier:   verifier,
		normalizer: normalizer,
		inbox:      ingester,
		deduper:    deduper,
		logger:     logger.With("channel", string(ch)),
	}
}

// WithLeadIntake makes every new sender pass through lead deduplication
// before the message is stored.
func (h *ChannelWebhook) WithLeadIntake(l LeadIntaker) *ChannelWebhook {
	h.leads = l
	return h
}

func (h *ChannelWebhook) WithMetrics(m *metrics.CRMMetrics) *ChannelWebhook {
	h.metrics = m
	return h
}

func (h *ChannelWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(string(h.channel), time.Since(start).Seconds())
	}()

	body, err := h.verifier.ReadVerifiedBody(r)
	if err != nil {
		if errors.Is(err, channels.ErrInvalidSignature) {
			h.metrics.ObserveWebhook(string(h.channel), "unauthorized")
			h.logger.Warn("webhook signature rejected", "remote_ip", r.RemoteAddr)
			respond.Error(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		h.metrics.ObserveWebhook(string(h.channel), "bad_request")
		respond.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.Process(r.Context(), body)
	if err != nil {
		h.metrics.ObserveWebhook(string(h.channel), "error")
		h.logger.Error("webhook processing failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.metrics.ObserveWebhook(string(h.channel), "ok")
	respond.OK(w, http.StatusOK, result)
}

// Process handles an already verified payload. Events that fail validation
// were dropped by the normalizer; persistence failures abort the delivery so
// the provider retries it.
func (h *ChannelWebhook) Process(ctx context.Context, payload []byte) (Result, error) {
	evts := h.normalizer.ExtractEvents(payload)
	result := Result{Received: len(evts)}
	for _, evt := range evts {
		dup, err := h.handleEvent(ctx, evt)
		if err != nil {
			return result, err
		}
		if dup {
			result.Duplicates++
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (h *ChannelWebhook) handleEvent(ctx context.Context, evt channels.InboundEvent) (bool, error) {
	provider := string(evt.Channel)
	claimed, err := h.deduper.MarkProcessed(ctx, provider, evt.ExternalID)
	if err != nil {
		return false, fmt.Errorf("intake: claim event: %w", err)
	}
	if !claimed {
		h.logger.Debug("duplicate webhook event skipped", "external_id", evt.ExternalID)
		return true, nil
	}

	if err := h.deliver(ctx, evt); err != nil {
		// A failed delivery gives up its claim so the provider retry is not
		// treated as a duplicate.
		if rerr := h.deduper.Release(context.WithoutCancel(ctx), provider, evt.ExternalID); rerr != nil {
			h.logger.Error("release processed event failed", "error", rerr, "external_id", evt.ExternalID)
		}
		return false, err
	}
	return false, nil
}

func (h *ChannelWebhook) deliver(ctx context.Context, evt channels.InboundEvent) error {
	var leadID string
	if h.leads != nil {
		res, err := h.leads.Intake(ctx, contactFromEvent(evt))
		switch {
		case err == nil:
			leadID = res.Lead.ID
		case errors.Is(err, leads.ErrMissingContact), errors.Is(err, leads.ErrInvalidName):
			h.logger.Info("event sender not usable as lead", "error", err, "external_id", evt.ExternalID)
		default:
			return fmt.Errorf("intake: lead intake: %w", err)
		}
	}

	_, created, err := h.inbox.Ingest(ctx, evt, leadID)
	if err != nil {
		return err
	}
	if !created {
		h.logger.Debug("message already stored", "external_id", evt.ExternalID)
	}
	return nil
}

func contactFromEvent(evt channels.InboundEvent) leads.Contact {
	c := leads.Contact{
		Name:    evt.SenderName,
		Message: evt.Text,
		Source:  sourceFor(evt.Channel),
	}
	if evt.Channel == channels.ChannelWhatsApp {
		c.Phone = evt.SenderID
		if c.Name == "" {
			c.Name = DefaultWhatsAppName
		}
	}
	return c
}

func sourceFor(ch channels.Channel) leads.Source {
	switch ch {
	case channels.ChannelWhatsApp:
		return leads.SourceWhatsApp
	case channels.ChannelInstagram:
		return leads.SourceInstagram
	}
	return leads.SourceForm
}
