package events

import "time"

// LeadCapturedV1 is emitted after a contact touch is merged into a lead.
type LeadCapturedV1 struct {
	LeadID     string    `json:"lead_id"`
	IsNew      bool      `json:"is_new"`
	Source     string    `json:"source"`
	Channel    string    `json:"channel,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	PageSlug   string    `json:"page_slug,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

func (LeadCapturedV1) EventType() string { return "leads.lead.captured.v1" }

// LeadImportedV1 is emitted for each lead created by a legacy backfill.
type LeadImportedV1 struct {
	LeadID     string    `json:"lead_id"`
	LegacyID   string    `json:"legacy_id"`
	PipelineID string    `json:"pipeline_id"`
	StageID    string    `json:"stage_id"`
	ImportedAt time.Time `json:"imported_at"`
}

func (LeadImportedV1) EventType() string { return "leads.lead.imported.v1" }

// MessageReceivedV1 captures an inbound channel message.
type MessageReceivedV1 struct {
	MessageID  string    `json:"message_id"`
	Channel    string    `json:"channel"`
	AccountID  string    `json:"account_id,omitempty"`
	LeadID     string    `json:"lead_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	ReceivedAt time.Time `json:"received_at"`
}

func (MessageReceivedV1) EventType() string { return "inbox.message.received.v1" }

// MessageSentV1 captures an outbound send accepted by the provider.
type MessageSentV1 struct {
	MessageID         string    `json:"message_id"`
	Channel           string    `json:"channel"`
	AccountID         string    `json:"account_id"`
	RecipientID       string    `json:"recipient_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	SentBy            string    `json:"sent_by"`
	SentAt            time.Time `json:"sent_at"`
}

func (MessageSentV1) EventType() string { return "inbox.message.sent.v1" }

// CallStatusChangedV1 captures every applied call state transition.
type CallStatusChangedV1 struct {
	CallID         string    `json:"call_id"`
	ExternalCallID string    `json:"external_call_id,omitempty"`
	LeadID         string    `json:"lead_id,omitempty"`
	From           string    `json:"from_status"`
	To             string    `json:"to_status"`
	ChangedAt      time.Time `json:"changed_at"`
}

func (CallStatusChangedV1) EventType() string { return "calls.call.status_changed.v1" }
