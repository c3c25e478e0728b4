package inbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/estate-crm/internal/channels"
)

// MessageStore persists messages idempotently on (channel, external id).
type MessageStore interface {
	// Upsert inserts msg unless a message with the same channel and external
	// id exists, in which case msg is filled from the stored row.
	Upsert(ctx context.Context, msg *Message) (created bool, err error)
	// Recent returns up to limit messages of one channel whose account,
	// sender or recipient is one of identifiers, newest first.
	Recent(ctx context.Context, channel channels.Channel, identifiers []string, limit int) ([]Message, error)
	ListByLead(ctx context.Context, leadID string, limit int) ([]Message, error)
}

// AccountStore persists connected channel accounts.
type AccountStore interface {
	// ByOwner lists the owner's accounts; an empty channel means all channels.
	ByOwner(ctx context.Context, ownerID string, channel channels.Channel) ([]Account, error)
	ByExternalID(ctx context.Context, channel channels.Channel, externalID string) (*Account, error)
	All(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, account *Account) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus, lastError string, checkedAt time.Time) error
}

// sortNewestFirst orders by timestamp descending with the id as tiebreak so
// the order is total.
func sortNewestFirst(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
}

// MemoryMessageStore keeps messages in memory.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	msgs map[string]Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{msgs: make(map[string]Message)}
}

func messageKey(ch channels.Channel, externalID string) string {
	return string(ch) + "\x00" + externalID
}

func (s *MemoryMessageStore) Upsert(ctx context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey(msg.Channel, msg.ExternalID)
	if existing, ok := s.msgs[key]; ok {
		*msg = existing
		return false, nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.msgs[key] = *msg
	return true, nil
}

func (s *MemoryMessageStore) Recent(ctx context.Context, channel channels.Channel, identifiers []string, limit int) ([]Message, error) {
	ids := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		if id != "" {
			ids[id] = true
		}
	}
	s.mu.RLock()
	var out []Message
	for _, m := range s.msgs {
		if m.Channel != channel {
			continue
		}
		if ids[m.AccountID] || ids[m.SenderID] || ids[m.RecipientID] {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryMessageStore) ListByLead(ctx context.Context, leadID string, limit int) ([]Message, error) {
	s.mu.RLock()
	var out []Message
	for _, m := range s.msgs {
		if leadID != "" && m.LeadID == leadID {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryAccountStore keeps accounts in memory.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	order    []string
}

func NewMemoryAccountStore(accounts ...Account) *MemoryAccountStore {
	s := &MemoryAccountStore{accounts: make(map[string]Account)}
	for i := range accounts {
		_ = s.Save(context.Background(), &accounts[i])
	}
	return s
}

func (s *MemoryAccountStore) ByOwner(ctx context.Context, ownerID string, channel channels.Channel) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Account
	for _, id := range s.order {
		a := s.accounts[id]
		if a.OwnerID != ownerID {
			continue
		}
		if channel != "" && a.Channel != channel {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryAccountStore) ByExternalID(ctx context.Context, channel channels.Channel, externalID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		a := s.accounts[id]
		if a.Channel == channel && a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *MemoryAccountStore) All(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

// Save inserts or replaces by (channel, external id).
func (s *MemoryAccountStore) Save(ctx context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		a := s.accounts[id]
		if a.Channel == account.Channel && strings.EqualFold(a.ExternalID, account.ExternalID) {
			account.ID = a.ID
			account.CreatedAt = a.CreatedAt
			s.accounts[id] = *account
			return nil
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = *account
	s.order = append(s.order, account.ID)
	return nil
}

func (s *MemoryAccountStore) UpdateStatus(ctx context.Context, id string, status AccountStatus, lastError string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Status = status
	a.LastError = lastError
	t := checkedAt
	a.LastCheckedAt = &t
	s.accounts[id] = a
	return nil
}
