package leads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PipelineRepository reads pipelines and reorders their stages.
type PipelineRepository interface {
	DefaultPipeline(ctx context.Context) (*Pipeline, error)
	GetPipeline(ctx context.Context, id string) (*Pipeline, error)
	// ReorderStages assigns order = index for each stage id, atomically.
	ReorderStages(ctx context.Context, pipelineID string, stageIDs []string) error
}

// validateReorder checks stageIDs is a permutation of the pipeline's stages.
func validateReorder(p *Pipeline, stageIDs []string) error {
	if len(stageIDs) != len(p.Stages) {
		return ErrInvalidStageOrder
	}
	known := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		known[s.ID] = true
	}
	seen := make(map[string]bool, len(stageIDs))
	for _, id := range stageIDs {
		if !known[id] || seen[id] {
			return ErrInvalidStageOrder
		}
		seen[id] = true
	}
	return nil
}

// InMemoryPipelineRepository holds pipelines in memory.
type InMemoryPipelineRepository struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

func NewInMemoryPipelineRepository(pipelines ...Pipeline) *InMemoryPipelineRepository {
	r := &InMemoryPipelineRepository{pipelines: make(map[string]*Pipeline)}
	for i := range pipelines {
		p := clonePipeline(&pipelines[i])
		r.pipelines[p.ID] = p
	}
	return r
}

func (r *InMemoryPipelineRepository) DefaultPipeline(ctx context.Context) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pipelines {
		if p.IsDefault {
			return clonePipeline(p), nil
		}
	}
	return nil, ErrNoDefaultPipeline
}

func (r *InMemoryPipelineRepository) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	if !ok {
		return nil, ErrPipelineNotFound
	}
	return clonePipeline(p), nil
}

func (r *InMemoryPipelineRepository) ReorderStages(ctx context.Context, pipelineID string, stageIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[pipelineID]
	if !ok {
		return ErrPipelineNotFound
	}
	if err := validateReorder(p, stageIDs); err != nil {
		return err
	}
	position := make(map[string]int, len(stageIDs))
	for i, id := range stageIDs {
		position[id] = i
	}
	for i := range p.Stages {
		p.Stages[i].Order = position[p.Stages[i].ID]
	}
	sortStages(p.Stages)
	return nil
}

func clonePipeline(p *Pipeline) *Pipeline {
	c := *p
	c.Stages = append([]Stage(nil), p.Stages...)
	sortStages(c.Stages)
	return &c
}

func sortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
}

type txQuerier interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresPipelineRepository stores pipelines and stages in Postgres.
type PostgresPipelineRepository struct {
	db txQuerier
}

func NewPostgresPipelineRepository(pool *pgxpool.Pool) *PostgresPipelineRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresPipelineRepository{db: pool}
}

func newPostgresPipelineRepositoryWithQuerier(db txQuerier) *PostgresPipelineRepository {
	return &PostgresPipelineRepository{db: db}
}

func (r *PostgresPipelineRepository) DefaultPipeline(ctx context.Context) (*Pipeline, error) {
	var p Pipeline
	err := r.db.QueryRow(ctx,
		`SELECT id, name, is_default, created_at FROM pipelines WHERE is_default LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.IsDefault, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDefaultPipeline
		}
		return nil, fmt.Errorf("leads: default pipeline: %w", err)
	}
	if err := r.loadStages(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPipelineRepository) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	var p Pipeline
	err := r.db.QueryRow(ctx,
		`SELECT id, name, is_default, created_at FROM pipelines WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.IsDefault, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPipelineNotFound
		}
		return nil, fmt.Errorf("leads: get pipeline: %w", err)
	}
	if err := r.loadStages(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPipelineRepository) loadStages(ctx context.Context, p *Pipeline) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, pipeline_id, name, position FROM stages WHERE pipeline_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("leads: load stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Order); err != nil {
			return fmt.Errorf("leads: scan stage: %w", err)
		}
		p.Stages = append(p.Stages, s)
	}
	return rows.Err()
}

// ReorderStages rewrites every stage position in one transaction. Positions
// are first moved to negative values so the unique (pipeline_id, position)
// constraint holds at every statement.
func (r *PostgresPipelineRepository) ReorderStages(ctx context.Context, pipelineID string, stageIDs []string) error {
	p, err := r.GetPipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	if err := validateReorder(p, stageIDs); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("leads: begin reorder: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE stages SET position = -position - 1 WHERE pipeline_id = $1`, pipelineID); err != nil {
		return fmt.Errorf("leads: park stage positions: %w", err)
	}
	for i, id := range stageIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE stages SET position = $1 WHERE id = $2 AND pipeline_id = $3`, i, id, pipelineID); err != nil {
			return fmt.Errorf("leads: set stage position: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("leads: commit reorder: %w", err)
	}
	return nil
}
