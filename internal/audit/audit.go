// Package audit records an append-only trail of lead submissions, outbound
// sends and call failures.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventLeadSubmitted   EventType = "lead.submitted"
	EventLeadImported    EventType = "lead.imported"
	EventMessageSent     EventType = "inbox.message_sent"
	EventCallFailed      EventType = "call.failed"
	EventStagesReordered EventType = "pipeline.stages_reordered"
)

// Event is an immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	LeadID    string          `json:"lead_id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SubmissionDetails describes where a lead submission came from.
type SubmissionDetails struct {
	IsNew       bool   `json:"is_new"`
	PageSlug    string `json:"page_slug,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
}

// Service writes and queries audit_events rows.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, actor_id, lead_id, channel, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.ActorID),
		nullString(event.LeadID),
		nullString(event.Channel),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogSubmission records a lead intake with its page and campaign context.
func (s *Service) LogSubmission(ctx context.Context, leadID, channel string, details SubmissionDetails) error {
	detailsJSON, _ := json.Marshal(details)
	return s.LogEvent(ctx, Event{
		EventType: EventLeadSubmitted,
		LeadID:    leadID,
		Channel:   channel,
		Details:   detailsJSON,
	})
}

// LogCallFailed records a call placement the provider rejected.
func (s *Service) LogCallFailed(ctx context.Context, actorID, leadID, reason string) error {
	detailsJSON, _ := json.Marshal(map[string]string{"reason": reason})
	return s.LogEvent(ctx, Event{
		EventType: EventCallFailed,
		ActorID:   actorID,
		LeadID:    leadID,
		Details:   detailsJSON,
	})
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	LeadID    string
	EventType EventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents retrieves audit events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, actor_id, lead_id, channel, details, created_at
		FROM audit_events
		WHERE 1=1
	`
	var args []any
	argIdx := 1

	if filter.LeadID != "" {
		query += fmt.Sprintf(" AND lead_id = $%d", argIdx)
		args = append(args, filter.LeadID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actorID, leadID, channel sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &actorID, &leadID, &channel, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.ActorID = actorID.String
		e.LeadID = leadID.String
		e.Channel = channel.String
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
