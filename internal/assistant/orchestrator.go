package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

var assistantTracer = otel.Tracer("estatecrm.internal.assistant")

const defaultStreamBuffer = 16

// ContextSource assembles the live context placed in the system prompt.
type ContextSource interface {
	Build(ctx context.Context, caller auth.Caller, mode Mode, leadID string) (string, error)
}

// Orchestrator runs providers in priority order behind one chunk stream.
type Orchestrator struct {
	providers []Provider
	contexts  ContextSource
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	buffer    int
}

func NewOrchestrator(providers []Provider, contexts ContextSource, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{providers: providers, contexts: contexts, logger: logger, buffer: defaultStreamBuffer}
}

func (o *Orchestrator) WithMetrics(m *metrics.CRMMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// Stream validates the request and builds context synchronously, then
// starts a producer goroutine feeding the returned channel. The channel is
// closed after a terminal chunk (Done or Err), or without one when ctx is
// cancelled.
func (o *Orchestrator) Stream(ctx context.Context, caller auth.Caller, req ChatRequest) (<-chan Chunk, error) {
	if caller.ID == "" {
		return nil, ErrNoCaller
	}
	if len(o.providers) == 0 {
		return nil, ErrNoProviders
	}
	history := TruncateHistory(req.Messages, MaxHistoryTurns)
	if len(history) == 0 || history[len(history)-1].Role != RoleUser {
		return nil, ErrEmptyConversation
	}
	mode := req.Mode
	if mode != ModeCRM {
		mode = ModeGeneral
	}
	locale := ResolveLocale(req.Locale)

	var live string
	if o.contexts != nil {
		built, err := o.contexts.Build(ctx, caller, mode, req.LeadID)
		switch {
		case errors.Is(err, ErrForbidden), errors.Is(err, ErrLeadNotFound):
			return nil, err
		case err != nil:
			o.logger.Warn("assistant context unavailable", "error", err, "caller_id", caller.ID)
		default:
			live = built
		}
	}

	completion := CompletionRequest{
		System:   BuildSystemPrompt(mode, locale, live, caller),
		Messages: history,
	}
	out := make(chan Chunk, o.buffer)
	go o.produce(ctx, completion, out)
	return out, nil
}

func (o *Orchestrator) produce(ctx context.Context, req CompletionRequest, out chan<- Chunk) {
	defer close(out)

	send := func(c Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var failures []string
	for _, p := range o.providers {
		if ctx.Err() != nil {
			return
		}
		committed, err := o.attempt(ctx, p, req, send)
		switch {
		case err == nil:
			o.metrics.ObserveProviderAttempt(p.Name(), "success")
			send(Chunk{Done: true})
			return
		case ctx.Err() != nil:
			o.metrics.ObserveProviderAttempt(p.Name(), "cancelled")
			return
		case committed:
			o.metrics.ObserveProviderAttempt(p.Name(), "interrupted")
			o.logger.Error("assistant stream interrupted", "provider", p.Name(), "error", err)
			send(Chunk{Err: fmt.Errorf("%w: %s", ErrStreamInterrupted, p.Name())})
			return
		default:
			o.metrics.ObserveProviderAttempt(p.Name(), "failed")
			o.logger.Warn("assistant provider failed, falling back", "provider", p.Name(), "error", err)
			failures = append(failures, p.Name())
		}
	}
	send(Chunk{Err: fmt.Errorf("%w: %s", ErrAllProvidersFailed, strings.Join(failures, ", "))})
}

// attempt runs one provider. The provider is committed once its first chunk
// reaches the consumer; nothing is forwarded for a provider that fails
// before that.
func (o *Orchestrator) attempt(ctx context.Context, p Provider, req CompletionRequest, send func(Chunk) bool) (bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	attemptCtx, span := assistantTracer.Start(attemptCtx, "assistant.provider")
	defer span.End()
	span.SetAttributes(attribute.String("estatecrm.ai.provider", p.Name()))

	committed := false
	err := p.Stream(attemptCtx, req, func(text string) error {
		if !send(Chunk{Text: text}) {
			cancel()
			return context.Canceled
		}
		committed = true
		return nil
	})
	if err == nil && !committed {
		err = errEmptyProviderResult
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failed")
	}
	span.SetAttributes(attribute.Bool("estatecrm.ai.committed", committed))
	return committed, err
}
