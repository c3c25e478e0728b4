package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/estate-crm/internal/audit"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// SubmissionAuditor records lead submissions.
type SubmissionAuditor interface {
	LogSubmission(ctx context.Context, leadID, channel string, details audit.SubmissionDetails) error
}

// IntakeResult is the outcome of one contact touch.
type IntakeResult struct {
	Lead  *Lead `json:"lead"`
	IsNew bool  `json:"is_new"`
}

// Engine deduplicates contact touches into canonical leads.
type Engine struct {
	repo      Repository
	auditor   SubmissionAuditor
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewEngine(repo Repository, logger *logging.Logger) *Engine {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{repo: repo, logger: logger, now: time.Now}
}

func (e *Engine) WithAuditor(a SubmissionAuditor) *Engine {
	e.auditor = a
	return e
}

func (e *Engine) WithPublisher(p events.Publisher) *Engine {
	e.publisher = p
	return e
}

func (e *Engine) WithMetrics(m *metrics.CRMMetrics) *Engine {
	e.metrics = m
	return e
}

// Intake finds the lead matching the contact's email or phone and merges into
// it, or creates a new unassigned lead.
func (e *Engine) Intake(ctx context.Context, c Contact) (IntakeResult, error) {
	if err := c.Validate(); err != nil {
		return IntakeResult{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = NormalizePhone(c.Phone)
	c.Email = NormalizeEmail(c.Email)
	if c.Source == "" {
		c.Source = SourceWebsite
	}

	existing, err := e.repo.FindByContact(ctx, c.Email, c.Phone)
	if err != nil && !errors.Is(err, ErrLeadNotFound) {
		return IntakeResult{}, fmt.Errorf("leads: lookup contact: %w", err)
	}

	var result IntakeResult
	if existing != nil {
		merge(existing, c)
		if err := e.repo.Update(ctx, existing); err != nil {
			return IntakeResult{}, fmt.Errorf("leads: merge lead: %w", err)
		}
		result = IntakeResult{Lead: existing, IsNew: false}
	} else {
		lead := newLead(c)
		if err := e.repo.Create(ctx, lead); err != nil {
			return IntakeResult{}, fmt.Errorf("leads: create lead: %w", err)
		}
		result = IntakeResult{Lead: lead, IsNew: true}
	}

	e.metrics.ObserveLeadIntake(string(c.Source), result.IsNew)
	e.logger.Info("lead intake",
		"lead_id", result.Lead.ID,
		"is_new", result.IsNew,
		"source", c.Source,
		"phone", logging.MaskPhone(c.Phone),
	)
	e.recordSideEffects(ctx, c, result)
	return result, nil
}

// recordSideEffects writes the audit row and the outbox event. Failures are
// logged and never fail the intake.
func (e *Engine) recordSideEffects(ctx context.Context, c Contact, result IntakeResult) {
	if e.auditor != nil {
		err := e.auditor.LogSubmission(ctx, result.Lead.ID, string(c.Source), audit.SubmissionDetails{
			IsNew:       result.IsNew,
			PageSlug:    c.Provenance.PageSlug,
			CampaignID:  c.Provenance.CampaignID,
			UTMSource:   c.Provenance.UTMSource,
			UTMCampaign: c.Provenance.UTMCampaign,
		})
		if err != nil {
			e.logger.Warn("lead submission audit failed", "error", err, "lead_id", result.Lead.ID)
		}
	}
	if e.publisher != nil {
		err := e.publisher.Publish(ctx, events.LeadAggregate(result.Lead.ID), events.LeadCapturedV1{
			LeadID:     result.Lead.ID,
			IsNew:      result.IsNew,
			Source:     string(c.Source),
			Channel:    result.Lead.Provenance.MarketingChannel,
			CampaignID: c.Provenance.CampaignID,
			PageSlug:   c.Provenance.PageSlug,
			CapturedAt: e.now().UTC(),
		})
		if err != nil {
			e.logger.Warn("lead captured event failed", "error", err, "lead_id", result.Lead.ID)
		}
	}
}

func newLead(c Contact) *Lead {
	lead := &Lead{
		ID:       uuid.NewString(),
		Name:     c.Name,
		Phone:    c.Phone,
		Email:    c.Email,
		Budget:   c.Budget,
		Message:  c.Message,
		Source:   c.Source,
		Status:   StatusNew,
		Priority: PriorityMedium,
	}
	applyProvenance(lead, c)
	return lead
}

// merge fills only empty contact fields and refreshes provenance to the
// latest touch.
func merge(lead *Lead, c Contact) {
	if strings.TrimSpace(lead.Name) == "" {
		lead.Name = c.Name
	}
	if lead.Phone == "" {
		lead.Phone = c.Phone
	}
	if lead.Email == "" {
		lead.Email = c.Email
	}
	if lead.Budget == "" {
		lead.Budget = c.Budget
	}
	if lead.Message == "" {
		lead.Message = c.Message
	}
	applyProvenance(lead, c)
}

func applyProvenance(lead *Lead, c Contact) {
	p := &lead.Provenance
	overwrite(&p.CampaignID, c.Provenance.CampaignID)
	overwrite(&p.UTMSource, c.Provenance.UTMSource)
	overwrite(&p.UTMMedium, c.Provenance.UTMMedium)
	overwrite(&p.UTMCampaign, c.Provenance.UTMCampaign)
	overwrite(&p.UTMTerm, c.Provenance.UTMTerm)
	overwrite(&p.UTMContent, c.Provenance.UTMContent)
	overwrite(&p.PageSlug, c.Provenance.PageSlug)
	p.MarketingChannel = c.Provenance.MarketingChannel
	if p.MarketingChannel == "" {
		p.MarketingChannel = string(c.Source)
	}
}

func overwrite(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
