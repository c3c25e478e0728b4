package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/estate-crm/internal/channels"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const messageColumns = `id, channel, external_id, account_id, sender_id, recipient_id, body, direction,
	lead_id, campaign_id, sent_at, created_at`

// PostgresMessageStore stores messages in the messages table, unique on
// (channel, external_id).
type PostgresMessageStore struct {
	db querier
}

func NewPostgresMessageStore(pool *pgxpool.Pool) *PostgresMessageStore {
	if pool == nil {
		panic("inbox: pgx pool required")
	}
	return &PostgresMessageStore{db: pool}
}

func newPostgresMessageStoreWithQuerier(db querier) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

// Upsert relies on the unique index so concurrent replays of one delivery
// insert at most one row.
func (s *PostgresMessageStore) Upsert(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (channel, external_id) DO NOTHING
		RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query,
		msg.ID, string(msg.Channel), msg.ExternalID, msg.AccountID, msg.SenderID, msg.RecipientID,
		msg.Body, string(msg.Direction), msg.LeadID, msg.CampaignID, msg.Timestamp,
	).Scan(&msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("inbox: insert message: %w", err)
	}

	existing, err := scanMessage(s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE channel = $1 AND external_id = $2`,
		string(msg.Channel), msg.ExternalID))
	if err != nil {
		return false, fmt.Errorf("inbox: load existing message: %w", err)
	}
	*msg = *existing
	return false, nil
}

func (s *PostgresMessageStore) Recent(ctx context.Context, channel channels.Channel, identifiers []string, limit int) ([]Message, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel = $1
		  AND (account_id = ANY($2) OR sender_id = ANY($2) OR recipient_id = ANY($2))
		ORDER BY sent_at DESC, id DESC
		LIMIT $3
	`
	return s.list(ctx, query, string(channel), identifiers, limit)
}

func (s *PostgresMessageStore) ListByLead(ctx context.Context, leadID string, limit int) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE lead_id = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`
	return s.list(ctx, query, leadID, limit)
}

func (s *PostgresMessageStore) list(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: query messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("inbox: scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		m                  Message
		channel, direction string
	)
	if err := row.Scan(&m.ID, &channel, &m.ExternalID, &m.AccountID, &m.SenderID, &m.RecipientID,
		&m.Body, &direction, &m.LeadID, &m.CampaignID, &m.Timestamp, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Channel = channels.Channel(channel)
	m.Direction = Direction(direction)
	return &m, nil
}

const accountColumns = `id, channel, external_id, display_name, credential, status, owner_id,
	last_error, last_checked_at, created_at`

// PostgresAccountStore stores connected accounts in the accounts table.
type PostgresAccountStore struct {
	db querier
}

func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	if pool == nil {
		panic("inbox: pgx pool required")
	}
	return &PostgresAccountStore{db: pool}
}

func newPostgresAccountStoreWithQuerier(db querier) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

func (s *PostgresAccountStore) ByOwner(ctx context.Context, ownerID string, channel channels.Channel) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 AND ($2 = '' OR channel = $2) ORDER BY created_at`
	return s.list(ctx, query, ownerID, string(channel))
}

func (s *PostgresAccountStore) ByExternalID(ctx context.Context, channel channels.Channel, externalID string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE channel = $1 AND external_id = $2`,
		string(channel), externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("inbox: account by external id: %w", err)
	}
	return a, nil
}

func (s *PostgresAccountStore) All(ctx context.Context) ([]Account, error) {
	return s.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
}

func (s *PostgresAccountStore) Save(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	query := `
		INSERT INTO accounts (id, channel, external_id, display_name, credential, status, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (channel, external_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			credential = EXCLUDED.credential,
			status = EXCLUDED.status,
			owner_id = EXCLUDED.owner_id,
			last_error = ''
		RETURNING id, created_at
	`
	if err := s.db.QueryRow(ctx, query,
		account.ID, string(account.Channel), account.ExternalID, account.DisplayName,
		account.Credential, string(account.Status), account.OwnerID,
	).Scan(&account.ID, &account.CreatedAt); err != nil {
		return fmt.Errorf("inbox: save account: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) UpdateStatus(ctx context.Context, id string, status AccountStatus, lastError string, checkedAt time.Time) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE accounts SET status = $2, last_error = $3, last_checked_at = $4 WHERE id = $1`,
		id, string(status), lastError, checkedAt)
	if err != nil {
		return fmt.Errorf("inbox: update account status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresAccountStore) list(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: query accounts: %w", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("inbox: scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a               Account
		channel, status string
	)
	if err := row.Scan(&a.ID, &channel, &a.ExternalID, &a.DisplayName, &a.Credential, &status,
		&a.OwnerID, &a.LastError, &a.LastCheckedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Channel = channels.Channel(channel)
	a.Status = AccountStatus(status)
	return &a, nil
}
