// Package store binds each persisted entity to its typed repository.
package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/estate-crm/internal/calls"
	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/leads"
)

// Entity tags a persisted entity kind.
type Entity string

const (
	EntityLead     Entity = "lead"
	EntityPipeline Entity = "pipeline"
	EntityMessage  Entity = "message"
	EntityAccount  Entity = "account"
	EntityCall     Entity = "call"
)

// Entities is the closed set of persisted entities, in a stable order.
var Entities = []Entity{EntityLead, EntityPipeline, EntityMessage, EntityAccount, EntityCall}

var ErrUnbound = errors.New("store: entity has no repository")

// Registry holds one repository per entity. Construct it once at startup and
// pass it to the components that need it.
type Registry struct {
	Leads     leads.Repository
	Pipelines leads.PipelineRepository
	Messages  inbox.MessageStore
	Accounts  inbox.AccountStore
	Calls     calls.Store
}

// NewPostgres binds every entity to its Postgres repository on pool.
func NewPostgres(pool *pgxpool.Pool) *Registry {
	return &Registry{
		Leads:     leads.NewPostgresRepository(pool),
		Pipelines: leads.NewPostgresPipelineRepository(pool),
		Messages:  inbox.NewPostgresMessageStore(pool),
		Accounts:  inbox.NewPostgresAccountStore(pool),
		Calls:     calls.NewPostgresStore(pool),
	}
}

// NewMemory binds every entity to an in-memory repository. Seed pipelines
// are loaded into the pipeline repository.
func NewMemory(pipelines ...leads.Pipeline) *Registry {
	return &Registry{
		Leads:     leads.NewInMemoryRepository(),
		Pipelines: leads.NewInMemoryPipelineRepository(pipelines...),
		Messages:  inbox.NewMemoryMessageStore(),
		Accounts:  inbox.NewMemoryAccountStore(),
		Calls:     calls.NewMemoryStore(),
	}
}

// Bound reports whether e has a repository.
func (r *Registry) Bound(e Entity) bool {
	switch e {
	case EntityLead:
		return r.Leads != nil
	case EntityPipeline:
		return r.Pipelines != nil
	case EntityMessage:
		return r.Messages != nil
	case EntityAccount:
		return r.Accounts != nil
	case EntityCall:
		return r.Calls != nil
	}
	return false
}

// Validate fails when any entity is unbound.
func (r *Registry) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: registry is nil", ErrUnbound)
	}
	var errs []error
	for _, e := range Entities {
		if !r.Bound(e) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnbound, e))
		}
	}
	return errors.Join(errs...)
}
