package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists calls. CompareAndSet is the only mutation after Create.
type Store interface {
	Create(ctx context.Context, call *Call) error
	Get(ctx context.Context, id string) (*Call, error)
	GetByExternalID(ctx context.Context, externalID string) (*Call, error)
	// CompareAndSet writes call only while the stored status still equals
	// from and is not terminal. It reports whether the write happened.
	CompareAndSet(ctx context.Context, call *Call, from Status) (bool, error)
}

// MemoryStore keeps calls in memory.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]Call)}
}

func (s *MemoryStore) Create(ctx context.Context, call *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calls[call.ID]; exists {
		return fmt.Errorf("calls: duplicate call id %s", call.ID)
	}
	s.calls[call.ID] = *call
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, externalID string) (*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if externalID != "" && c.ExternalCallID == externalID {
			return &c, nil
		}
	}
	return nil, ErrCallNotFound
}

func (s *MemoryStore) CompareAndSet(ctx context.Context, call *Call, from Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.calls[call.ID]
	if !ok {
		return false, ErrCallNotFound
	}
	if current.Status != from || current.Status.Terminal() {
		return false, nil
	}
	s.calls[call.ID] = *call
	return true, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists calls in the calls table.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `id, lead_id, caller_id, phone_number, direction, status, external_call_id,
	failure_reason, started_at, ended_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, call *Call) error {
	query := `
		INSERT INTO calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)
	`
	_, err := s.db.Exec(ctx, query,
		call.ID, call.LeadID, call.CallerID, call.PhoneNumber, call.Direction, string(call.Status),
		call.ExternalCallID, call.FailureReason, call.StartedAt, call.EndedAt, call.CreatedAt, call.UpdatedAt)
	if err != nil {
		return fmt.Errorf("calls: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Call, error) {
	return s.getOne(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (*Call, error) {
	return s.getOne(ctx, `SELECT `+callColumns+` FROM calls WHERE external_call_id = $1`, externalID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*Call, error) {
	var (
		c              Call
		status         string
		externalCallID *string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(&c.ID, &c.LeadID, &c.CallerID, &c.PhoneNumber, &c.Direction,
		&status, &externalCallID, &c.FailureReason, &c.StartedAt, &c.EndedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("calls: select: %w", err)
	}
	c.Status = Status(status)
	if externalCallID != nil {
		c.ExternalCallID = *externalCallID
	}
	return &c, nil
}

// CompareAndSet guards on the expected status and on terminal states in SQL
// so a racing callback can never resurrect a finished call.
func (s *PostgresStore) CompareAndSet(ctx context.Context, call *Call, from Status) (bool, error) {
	query := `
		UPDATE calls SET
			status = $2,
			external_call_id = COALESCE(NULLIF($3, ''), external_call_id),
			failure_reason = $4,
			started_at = $5,
			ended_at = $6,
			updated_at = $7
		WHERE id = $1 AND status = $8 AND status NOT IN ('FAILED', 'COMPLETED')
	`
	ct, err := s.db.Exec(ctx, query, call.ID, string(call.Status), call.ExternalCallID, call.FailureReason,
		call.StartedAt, call.EndedAt, call.UpdatedAt, string(from))
	if err != nil {
		return false, fmt.Errorf("calls: update: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

