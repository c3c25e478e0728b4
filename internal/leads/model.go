package leads

import (
	"strings"
	"time"
)

// Source records which channel first produced a lead.
type Source string

const (
	SourceWebsite   Source = "website"
	SourceForm      Source = "form"
	SourceSheet     Source = "sheet"
	SourceInstagram Source = "instagram"
	SourceWhatsApp  Source = "whatsapp"
	SourceLegacy    Source = "legacy_import"
	SourceManual    Source = "manual"
)

// Status is the lead's sales status.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusQualified   Status = "qualified"
	StatusViewing     Status = "viewing"
	StatusNegotiation Status = "negotiation"
	StatusWon         Status = "won"
	StatusLost        Status = "lost"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Provenance is the marketing context of the most recent touch.
type Provenance struct {
	CampaignID       string `json:"campaign_id,omitempty"`
	UTMSource        string `json:"utm_source,omitempty"`
	UTMMedium        string `json:"utm_medium,omitempty"`
	UTMCampaign      string `json:"utm_campaign,omitempty"`
	UTMTerm          string `json:"utm_term,omitempty"`
	UTMContent       string `json:"utm_content,omitempty"`
	MarketingChannel string `json:"marketing_channel,omitempty"`
	PageSlug         string `json:"page_slug,omitempty"`
}

// Lead is a prospective customer. Phone is stored digits-only.
type Lead struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	Message       string     `json:"message,omitempty"`
	Source        Source     `json:"source"`
	Status        Status     `json:"status"`
	Priority      Priority   `json:"priority"`
	Score         int        `json:"score"`
	Budget        string     `json:"budget,omitempty"`
	ExpectedValue float64    `json:"expected_value"`
	PipelineID    *string    `json:"pipeline_id"`
	StageID       *string    `json:"stage_id"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	Provenance    Provenance `json:"provenance"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Contact is one contact touch submitted to the dedup engine.
type Contact struct {
	Name       string
	Phone      string
	Email      string
	Budget     string
	Message    string
	Source     Source
	Provenance Provenance
}

// Validate checks the minimum fields for intake.
func (c Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(c.Email) == "" && NormalizePhone(c.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

// Pipeline is an ordered sales funnel. Exactly one pipeline is the default.
type Pipeline struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Stages    []Stage   `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

// Stage is a named step of a pipeline. Order is unique within the pipeline.
type Stage struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipeline_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

// FirstStage returns the stage with the lowest order.
func (p Pipeline) FirstStage() (Stage, bool) {
	if len(p.Stages) == 0 {
		return Stage{}, false
	}
	first := p.Stages[0]
	for _, s := range p.Stages[1:] {
		if s.Order < first.Order {
			first = s
		}
	}
	return first, true
}

// ListFilter narrows lead listings.
type ListFilter struct {
	AssignedTo string
	Status     Status
	Limit      int
}
