package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for lead storage
type Repository interface {
	// FindByContact returns the lead whose email matches case-insensitively or
	// whose stored phone matches by suffix. ErrLeadNotFound when none does.
	FindByContact(ctx context.Context, email, phone string) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	Create(ctx context.Context, lead *Lead) error
	Update(ctx context.Context, lead *Lead) error
	// Upsert inserts by id or refreshes an existing row. Existing pipeline and
	// stage assignments are never replaced.
	Upsert(ctx context.Context, lead *Lead) (created bool, err error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository is a Repository backed by a map.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	order []string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

func (r *InMemoryRepository) FindByContact(ctx context.Context, email, phone string) (*Lead, error) {
	email = NormalizeEmail(email)
	phone = NormalizePhone(phone)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var phoneMatch *Lead
	for _, id := range r.order {
		lead := r.leads[id]
		if email != "" && NormalizeEmail(lead.Email) == email {
			return clone(lead), nil
		}
		if phoneMatch == nil && PhoneMatches(lead.Phone, phone) {
			phoneMatch = lead
		}
	}
	if phoneMatch != nil {
		return clone(phoneMatch), nil
	}
	return nil, ErrLeadNotFound
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return clone(lead), nil
}

func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(lead)
	return nil
}

func (r *InMemoryRepository) insertLocked(lead *Lead) {
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if _, exists := r.leads[lead.ID]; !exists {
		r.order = append(r.order, lead.ID)
	}
	r.leads[lead.ID] = clone(lead)
}

func (r *InMemoryRepository) Update(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[lead.ID]; !ok {
		return ErrLeadNotFound
	}
	lead.UpdatedAt = time.Now().UTC()
	r.leads[lead.ID] = clone(lead)
	return nil
}

func (r *InMemoryRepository) Upsert(ctx context.Context, lead *Lead) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.leads[lead.ID]
	if !ok {
		r.insertLocked(lead)
		return true, nil
	}
	// Only contact fields are refreshed, matching the Postgres upsert.
	stored := clone(existing)
	stored.Name = lead.Name
	stored.Phone = lead.Phone
	stored.Email = lead.Email
	stored.Budget = lead.Budget
	if stored.PipelineID == nil {
		stored.PipelineID = lead.PipelineID
		stored.StageID = lead.StageID
	}
	stored.UpdatedAt = time.Now().UTC()
	r.leads[lead.ID] = stored
	*lead = *clone(stored)
	return false, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lead
	for _, lead := range r.leads {
		if filter.AssignedTo != "" && lead.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		out = append(out, clone(lead))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func clone(l *Lead) *Lead {
	c := *l
	if l.PipelineID != nil {
		v := *l.PipelineID
		c.PipelineID = &v
	}
	if l.StageID != nil {
		v := *l.StageID
		c.StageID = &v
	}
	return &c
}
