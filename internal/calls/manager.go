package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

var callsTracer = otel.Tracer("estatecrm.internal.calls")

// Placer asks the telephony provider to start a call.
type Placer interface {
	Place(ctx context.Context, from, to string) (externalCallID string, err error)
}

// LeadLookup loads the lead a call targets.
type LeadLookup interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
}

// FailureAuditor records failed placements.
type FailureAuditor interface {
	LogCallFailed(ctx context.Context, actorID, leadID, reason string) error
}

// PlaceRequest asks for a call to a lead, or to a raw number for elevated
// callers.
type PlaceRequest struct {
	LeadID      string `json:"lead_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Manager owns every call state change.
type Manager struct {
	store     Store
	placer    Placer
	leads     LeadLookup
	from      string
	auditor   FailureAuditor
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewManager(store Store, placer Placer, leadLookup LeadLookup, fromNumber string, logger *logging.Logger) *Manager {
	if store == nil || leadLookup == nil {
		panic("calls: store and lead lookup are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, placer: placer, leads: leadLookup, from: fromNumber, logger: logger, now: time.Now}
}

func (m *Manager) WithAuditor(a FailureAuditor) *Manager {
	m.auditor = a
	return m
}

func (m *Manager) WithPublisher(p events.Publisher) *Manager {
	m.publisher = p
	return m
}

func (m *Manager) WithMetrics(cm *metrics.CRMMetrics) *Manager {
	m.metrics = cm
	return m
}

// Place records an INITIATED call before contacting the provider, then moves
// it to RINGING or FAILED. A failed placement returns the FAILED call along
// with ErrPlacementFailed; it is not retried.
func (m *Manager) Place(ctx context.Context, caller auth.Caller, req PlaceRequest) (*Call, error) {
	if caller.ID == "" {
		return nil, ErrUnauthenticated
	}
	if m.placer == nil {
		return nil, ErrPlacerNotEnabled
	}
	phone, err := m.authorize(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	call := &Call{
		ID:          uuid.NewString(),
		LeadID:      req.LeadID,
		CallerID:    caller.ID,
		PhoneNumber: phone,
		Direction:   DirectionOutbound,
		Status:      StatusInitiated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("calls: create call: %w", err)
	}
	m.metrics.ObserveCallTransition("", string(StatusInitiated))

	ctx, span := callsTracer.Start(ctx, "calls.place")
	defer span.End()
	span.SetAttributes(attribute.String("estatecrm.call_id", call.ID), attribute.String("estatecrm.lead_id", call.LeadID))

	externalID, placeErr := m.placer.Place(ctx, m.from, phone)
	// The outcome is recorded even if the caller went away during placement.
	persistCtx := context.WithoutCancel(ctx)
	if placeErr != nil {
		span.RecordError(placeErr)
		span.SetStatus(codes.Error, "placement failed")
		m.logger.Error("call placement failed", "error", placeErr, "call_id", call.ID, "to", logging.MaskPhone(phone))

		next := *call
		next.FailureReason = placeErr.Error()
		next.apply(StatusFailed, m.now().UTC())
		if _, err := m.commit(persistCtx, &next, StatusInitiated); err != nil {
			return nil, err
		}
		if m.auditor != nil {
			if err := m.auditor.LogCallFailed(persistCtx, caller.ID, call.LeadID, placeErr.Error()); err != nil {
				m.logger.Warn("call failure audit failed", "error", err, "call_id", call.ID)
			}
		}
		return &next, fmt.Errorf("%w: %w", ErrPlacementFailed, placeErr)
	}

	next := *call
	next.ExternalCallID = externalID
	next.apply(StatusRinging, m.now().UTC())
	applied, err := m.commit(persistCtx, &next, StatusInitiated)
	if err != nil {
		return nil, err
	}
	if !applied {
		return m.store.Get(persistCtx, call.ID)
	}
	return &next, nil
}

// authorize re-checks lead ownership and resolves the number to dial.
func (m *Manager) authorize(ctx context.Context, caller auth.Caller, req PlaceRequest) (string, error) {
	if req.LeadID == "" {
		if !caller.Elevated() {
			return "", ErrForbidden
		}
		phone := leads.NormalizePhone(req.PhoneNumber)
		if phone == "" {
			return "", ErrInvalidPhone
		}
		return phone, nil
	}

	lead, err := m.leads.GetByID(ctx, req.LeadID)
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			return "", ErrLeadNotFound
		}
		return "", fmt.Errorf("calls: load lead: %w", err)
	}
	if !leads.CanAccess(caller, lead) {
		m.logger.Warn("call denied for lead", "caller_id", caller.ID, "lead_id", lead.ID)
		return "", ErrForbidden
	}
	phone := lead.Phone
	if phone == "" {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// ApplyCallback moves the call with the given provider id to status. It is
// a no-op returning the stored call when the transition is not allowed,
// including every update to a FAILED or COMPLETED call.
func (m *Manager) ApplyCallback(ctx context.Context, externalID string, status Status) (*Call, bool, error) {
	if !status.Valid() {
		return nil, false, ErrInvalidStatus
	}
	call, err := m.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	if call.Status == status || !CanTransition(call.Status, status) {
		m.logger.Info("call callback ignored", "call_id", call.ID, "status", call.Status, "requested", status)
		return call, false, nil
	}

	from := call.Status
	next := *call
	next.apply(status, m.now().UTC())
	applied, err := m.commit(ctx, &next, from)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		current, err := m.store.Get(ctx, call.ID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	return &next, true, nil
}

func (m *Manager) commit(ctx context.Context, next *Call, from Status) (bool, error) {
	applied, err := m.store.CompareAndSet(ctx, next, from)
	if err != nil {
		return false, fmt.Errorf("calls: update call: %w", err)
	}
	if !applied {
		m.logger.Info("call transition lost race", "call_id", next.ID, "from", from, "to", next.Status)
		return false, nil
	}
	m.metrics.ObserveCallTransition(string(from), string(next.Status))
	if m.publisher != nil {
		err := m.publisher.Publish(ctx, events.CallAggregate(next.ID), events.CallStatusChangedV1{
			CallID:         next.ID,
			ExternalCallID: next.ExternalCallID,
			LeadID:         next.LeadID,
			From:           string(from),
			To:             string(next.Status),
			ChangedAt:      next.UpdatedAt,
		})
		if err != nil {
			m.logger.Warn("call status event failed", "error", err, "call_id", next.ID)
		}
	}
	return true, nil
}
