package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// LegacyIDPrefix prefixes legacy ids so re-running a backfill upserts the
// same rows instead of duplicating them.
const LegacyIDPrefix = "legacy_"

// LegacyRecord is one lead row read from the legacy store.
type LegacyRecord struct {
	ID        string
	Name      string
	Phone     string
	Email     string
	Budget    string
	Notes     string
	CreatedAt time.Time
}

// LegacySource yields legacy lead rows.
type LegacySource interface {
	FetchLeads(ctx context.Context) ([]LegacyRecord, error)
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Matched int `json:"matched"`
	Skipped int `json:"skipped"`
}

// Backfiller imports legacy leads and places each new lead on the first
// stage of the default pipeline.
type Backfiller struct {
	repo      Repository
	pipelines PipelineRepository
	source    LegacySource
	publisher events.Publisher
	logger    *logging.Logger
	now       func() time.Time
}

func NewBackfiller(repo Repository, pipelines PipelineRepository, source LegacySource, logger *logging.Logger) *Backfiller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Backfiller{repo: repo, pipelines: pipelines, source: source, logger: logger, now: time.Now}
}

func (b *Backfiller) WithPublisher(p events.Publisher) *Backfiller {
	b.publisher = p
	return b
}

// Run resolves the default pipeline before touching any lead, so a missing
// pipeline aborts with ErrNoDefaultPipeline and writes nothing. Leads already
// known under another id are left as they are.
func (b *Backfiller) Run(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport

	pipeline, err := b.pipelines.DefaultPipeline(ctx)
	if err != nil {
		if errors.Is(err, ErrNoDefaultPipeline) {
			return report, err
		}
		return report, fmt.Errorf("leads: resolve default pipeline: %w", err)
	}
	stage, ok := pipeline.FirstStage()
	if !ok {
		return report, fmt.Errorf("%w: %s", ErrNoStages, pipeline.ID)
	}

	records, err := b.source.FetchLeads(ctx)
	if err != nil {
		return report, fmt.Errorf("leads: fetch legacy leads: %w", err)
	}
	report.Total = len(records)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := b.importOne(ctx, rec, pipeline.ID, stage.ID)
		if err != nil {
			return report, err
		}
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		case outcomeMatched:
			report.Matched++
		default:
			report.Skipped++
		}
	}

	b.logger.Info("legacy backfill complete",
		"total", report.Total,
		"created", report.Created,
		"updated", report.Updated,
		"matched", report.Matched,
		"skipped", report.Skipped,
		"pipeline_id", pipeline.ID,
	)
	return report, nil
}

type importOutcome int

const (
	outcomeSkipped importOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeMatched
)

func (b *Backfiller) importOne(ctx context.Context, rec LegacyRecord, pipelineID, stageID string) (importOutcome, error) {
	id := LegacyIDPrefix + strings.TrimSpace(rec.ID)
	phone := NormalizePhone(rec.Phone)
	email := NormalizeEmail(rec.Email)
	if strings.TrimSpace(rec.ID) == "" || (phone == "" && email == "") {
		b.logger.Debug("skipping legacy row without id or contact", "legacy_id", rec.ID)
		return outcomeSkipped, nil
	}

	existing, err := b.repo.FindByContact(ctx, email, phone)
	if err != nil && !errors.Is(err, ErrLeadNotFound) {
		return outcomeSkipped, fmt.Errorf("leads: lookup legacy contact: %w", err)
	}
	if existing != nil && existing.ID != id {
		return outcomeMatched, nil
	}

	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = "Legacy Contact"
	}
	pid, sid := pipelineID, stageID
	lead := &Lead{
		ID:         id,
		Name:       name,
		Phone:      phone,
		Email:      email,
		Budget:     rec.Budget,
		Message:    rec.Notes,
		Source:     SourceLegacy,
		Status:     StatusNew,
		Priority:   PriorityMedium,
		PipelineID: &pid,
		StageID:    &sid,
		Provenance: Provenance{MarketingChannel: string(SourceLegacy)},
		CreatedAt:  rec.CreatedAt,
	}
	created, err := b.repo.Upsert(ctx, lead)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("leads: upsert legacy lead %s: %w", id, err)
	}
	if !created {
		return outcomeUpdated, nil
	}

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, events.LeadAggregate(id), events.LeadImportedV1{
			LeadID:     id,
			LegacyID:   rec.ID,
			PipelineID: pipelineID,
			StageID:    stageID,
			ImportedAt: b.now().UTC(),
		}); err != nil {
			b.logger.Warn("lead imported event failed", "error", err, "lead_id", id)
		}
	}
	return outcomeCreated, nil
}
