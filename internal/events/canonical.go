package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CanonicalEvent is a CRM domain event. Event types are dotted names ending
// in a version segment, e.g. "leads.lead.captured.v1".
type CanonicalEvent interface {
	EventType() string
}

// Aggregate keys name the record an event belongs to.
func LeadAggregate(id string) string    { return "lead:" + id }
func CallAggregate(id string) string    { return "call:" + id }
func MessageAggregate(id string) string { return "message:" + id }

// Envelope is the body stored in the outbox and shipped downstream.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	Version    int             `json:"version"`
	Aggregate  string          `json:"aggregate"`
	OccurredAt time.Time       `json:"occurred_at"`
	RequestID  string          `json:"request_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope.
type EnvelopeOption func(*Envelope)

// WithEventID pins the event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithOccurredAt pins the event time.
func WithOccurredAt(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

var (
	ErrInvalidAggregate  = errors.New("events: aggregate must look like kind:id")
	ErrUnversionedType   = errors.New("events: event type must end in .v<N>")
	ErrEventTypeMismatch = errors.New("events: envelope carries a different event type")
	errNilEvent          = errors.New("events: canonical event required")
	nowFunc              = time.Now
)

func validAggregate(aggregate string) bool {
	kind, id, ok := strings.Cut(aggregate, ":")
	return ok && strings.TrimSpace(kind) != "" && strings.TrimSpace(id) != ""
}

// typeVersion extracts N from a trailing ".vN" segment.
func typeVersion(eventType string) (int, error) {
	i := strings.LastIndex(eventType, ".v")
	if i <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnversionedType, eventType)
	}
	v, err := strconv.Atoi(eventType[i+2:])
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %q", ErrUnversionedType, eventType)
	}
	return v, nil
}

// newEnvelope wraps evt for aggregate. The chi request id on ctx, if any,
// travels with the event so downstream consumers can join it to API logs.
func newEnvelope(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	aggregate = strings.TrimSpace(aggregate)
	if !validAggregate(aggregate) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrInvalidAggregate, aggregate)
	}
	eventType := strings.TrimSpace(evt.EventType())
	version, err := typeVersion(eventType)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	env := Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		Version:    version,
		Aggregate:  aggregate,
		OccurredAt: nowFunc().UTC(),
		RequestID:  chimw.GetReqID(ctx),
		Payload:    payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// DecodeEnvelope parses an outbox payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	if env.EventType == "" || env.Aggregate == "" {
		return Envelope{}, fmt.Errorf("events: decode envelope: missing type or aggregate")
	}
	return env, nil
}

// Into decodes the payload into dst, which must be a pointer to the event
// type the envelope was built from.
func (e Envelope) Into(dst CanonicalEvent) error {
	if dst == nil {
		return errNilEvent
	}
	if dst.EventType() != e.EventType {
		return fmt.Errorf("%w: have %s, want %s", ErrEventTypeMismatch, e.EventType, dst.EventType())
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AppendCanonicalEvent writes the event envelope to the outbox using exec,
// which may be a pool or an open transaction.
func AppendCanonicalEvent(ctx context.Context, exec execer, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, fmt.Errorf("events: exec required")
	}
	env, err := newEnvelope(ctx, aggregate, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, data); err != nil {
		return Envelope{}, fmt.Errorf("events: append %s: %w", env.EventType, err)
	}
	return env, nil
}
