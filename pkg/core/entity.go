package core

import (
	"context"
	"errors"
)

// EntityKind is the closed set of business entities the engine may
// load, patch, or delete on behalf of an action.
type EntityKind string

const (
	EntityClient  EntityKind = "client"
	EntityLead    EntityKind = "lead"
	EntityQuote   EntityKind = "quote"
	EntityJob     EntityKind = "job"
	EntityInvoice EntityKind = "invoice"
	EntityTask    EntityKind = "task"
)

// ErrUnknownEntityKind is returned for a kind outside the closed set.
var ErrUnknownEntityKind = errors.New("automation: unknown entity kind")

// ParseEntityKind validates a wire-level entity type string.
func ParseEntityKind(s string) (EntityKind, error) {
	switch k := EntityKind(s); k {
	case EntityClient, EntityLead, EntityQuote, EntityJob, EntityInvoice, EntityTask:
		return k, nil
	}
	return "", ErrUnknownEntityKind
}

// EntityStore is the uniform capability the CRUD layer exposes over
// its entities. Each kind supports the same three operations; the
// engine never routes by raw table name.
type EntityStore interface {
	Load(ctx context.Context, kind EntityKind, id string) (map[string]any, error)
	Patch(ctx context.Context, kind EntityKind, id string, field string, value any) error
	Delete(ctx context.Context, kind EntityKind, id string) error
}
