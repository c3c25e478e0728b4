package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const leadColumns = `id, name, phone, email, message, source, status, priority, score, budget,
	expected_value, pipeline_id, stage_id, assigned_to, campaign_id, utm_source, utm_medium,
	utm_campaign, utm_term, utm_content, marketing_channel, page_slug, created_at, updated_at`

// FindByContact prefers an email match, then the oldest phone-suffix match.
func (r *PostgresRepository) FindByContact(ctx context.Context, email, phone string) (*Lead, error) {
	email = NormalizeEmail(email)
	phone = NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, ErrLeadNotFound
	}
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE ($1 <> '' AND lower(email) = $1)
		   OR ($2 <> '' AND phone <> '' AND (phone = $2 OR (length($2) >= $3 AND phone LIKE '%' || $2)))
		ORDER BY ($1 <> '' AND lower(email) = $1) DESC, created_at ASC
		LIMIT 1
	`
	lead, err := scanLead(r.db.QueryRow(ctx, query, email, phone, MinSuffixDigits))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: find by contact: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) error {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, now(), now())
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query, leadArgs(lead)...).Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, lead *Lead) error {
	query := `
		UPDATE leads SET
			name = $2, phone = $3, email = $4, message = $5, source = $6, status = $7,
			priority = $8, score = $9, budget = $10, expected_value = $11, pipeline_id = $12,
			stage_id = $13, assigned_to = $14, campaign_id = $15, utm_source = $16,
			utm_medium = $17, utm_campaign = $18, utm_term = $19, utm_content = $20,
			marketing_channel = $21, page_slug = $22, updated_at = now()
		WHERE id = $1
	`
	ct, err := r.db.Exec(ctx, query, leadArgs(lead)...)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// Upsert keys on id. An existing pipeline/stage assignment always wins over
// the incoming one.
func (r *PostgresRepository) Upsert(ctx context.Context, lead *Lead) (bool, error) {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			budget = EXCLUDED.budget,
			pipeline_id = COALESCE(leads.pipeline_id, EXCLUDED.pipeline_id),
			stage_id = CASE WHEN leads.pipeline_id IS NULL THEN EXCLUDED.stage_id ELSE leads.stage_id END,
			updated_at = now()
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	if err := r.db.QueryRow(ctx, query, leadArgs(lead)...).Scan(&inserted); err != nil {
		return false, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return inserted, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		conds = append(conds, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func leadArgs(l *Lead) []any {
	return []any{
		l.ID, l.Name, l.Phone, l.Email, l.Message, string(l.Source), string(l.Status),
		string(l.Priority), l.Score, l.Budget, l.ExpectedValue, l.PipelineID, l.StageID,
		l.AssignedTo, l.Provenance.CampaignID, l.Provenance.UTMSource, l.Provenance.UTMMedium,
		l.Provenance.UTMCampaign, l.Provenance.UTMTerm, l.Provenance.UTMContent,
		l.Provenance.MarketingChannel, l.Provenance.PageSlug,
	}
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		l                        Lead
		source, status, priority string
	)
	if err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &l.Email, &l.Message, &source, &status, &priority,
		&l.Score, &l.Budget, &l.ExpectedValue, &l.PipelineID, &l.StageID, &l.AssignedTo,
		&l.Provenance.CampaignID, &l.Provenance.UTMSource, &l.Provenance.UTMMedium,
		&l.Provenance.UTMCampaign, &l.Provenance.UTMTerm, &l.Provenance.UTMContent,
		&l.Provenance.MarketingChannel, &l.Provenance.PageSlug, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Source = Source(source)
	l.Status = Status(status)
	l.Priority = Priority(priority)
	return &l, nil
}
