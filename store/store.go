// Package store defines the master-data catalog interface and implementations.
package store

import (
	"context"
	"encoding/json"

	"github.com/procurechat/pochat/domain"
)

// Entity is one master-data record. Extra holds entity-specific fields that
// are flattened next to id and name on the wire.
type Entity struct {
	Type  domain.MentionType
	ID    string
	Name  string
	Extra json.RawMessage
}

// MarshalJSON flattens Extra into the entity object alongside id and name.
func (e Entity) MarshalJSON() ([]byte, error) {
	flat := map[string]any{}
	if len(e.Extra) > 0 {
		if err := json.Unmarshal(e.Extra, &flat); err != nil {
			return nil, err
		}
	}
	flat["id"] = e.ID
	flat["name"] = e.Name
	return json.Marshal(flat)
}

// Store defines the catalog persistence interface.
type Store interface {
	UpsertEntity(ctx context.Context, entity *Entity) error
	GetEntity(ctx context.Context, entityType domain.MentionType, id string) (*Entity, error)
	SearchEntities(ctx context.Context, entityType domain.MentionType, query string, limit int) ([]Entity, error)
	Close() error
}
