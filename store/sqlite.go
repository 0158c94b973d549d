package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/procurechat/pochat/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite catalog store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			extra TEXT,
			PRIMARY KEY (entity_type, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_type, name)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// seed inserts the sample catalog used by the stub backend. Idempotent.
func (s *SQLiteStore) seed() error {
	seeds := []Entity{
		{Type: domain.MentionCounterparty, ID: "cp_001", Name: "Acme Industrial Supply", Extra: []byte(`{"gstin":"29ACME1234F1Z5"}`)},
		{Type: domain.MentionCounterparty, ID: "cp_002", Name: "Globex Manufacturing", Extra: []byte(`{"gstin":"27GLOB5678K2Z3"}`)},
		{Type: domain.MentionCounterparty, ID: "cp_003", Name: "Initech Components", Extra: []byte(`{"gstin":"24INIT9012M3Z1"}`)},
		{Type: domain.MentionItem, ID: "itm_001", Name: "Steel Rod 12mm", Extra: []byte(`{"unit":"kg","rate":62.5}`)},
		{Type: domain.MentionItem, ID: "itm_002", Name: "Copper Wire 2.5sqmm", Extra: []byte(`{"unit":"m","rate":18.0}`)},
		{Type: domain.MentionItem, ID: "itm_003", Name: "PVC Conduit 25mm", Extra: []byte(`{"unit":"m","rate":45.0}`)},
		{Type: domain.MentionTerms, ID: "trm_001", Name: "Net 30", Extra: []byte(`{"days":30}`)},
		{Type: domain.MentionTerms, ID: "trm_002", Name: "Net 45", Extra: []byte(`{"days":45}`)},
		{Type: domain.MentionBillingAddress, ID: "adr_001", Name: "Head Office, 14 Industrial Estate", Extra: nil},
		{Type: domain.MentionBillingAddress, ID: "adr_002", Name: "Plant 2, Sector 8", Extra: nil},
	}

	for i := range seeds {
		if err := s.UpsertEntity(context.Background(), &seeds[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertEntity inserts or replaces a catalog entity.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, entity *Entity) error {
	var extra any
	if len(entity.Extra) > 0 {
		extra = string(entity.Extra)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entities (entity_type, entity_id, name, extra) VALUES (?, ?, ?, ?)`,
		string(entity.Type), entity.ID, entity.Name, extra)
	return err
}

// GetEntity retrieves one entity by type and id.
func (s *SQLiteStore) GetEntity(ctx context.Context, entityType domain.MentionType, id string) (*Entity, error) {
	var entity Entity
	var typ string
	var extra sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_type, entity_id, name, extra FROM entities WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), id).Scan(&typ, &entity.ID, &entity.Name, &extra)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entity.Type = domain.MentionType(typ)
	if extra.Valid {
		entity.Extra = []byte(extra.String)
	}
	return &entity, nil
}

// SearchEntities returns entities of a type whose name matches the free-text
// query, ordered by name.
func (s *SQLiteStore) SearchEntities(ctx context.Context, entityType domain.MentionType, query string, limit int) ([]Entity, error) {
	sqlQuery := `SELECT entity_type, entity_id, name, extra FROM entities WHERE entity_type = ?`
	args := []interface{}{string(entityType)}

	if query != "" {
		sqlQuery += ` AND name LIKE ?`
		args = append(args, "%"+query+"%")
	}

	sqlQuery += ` ORDER BY name ASC`
	if limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var entity Entity
		var typ string
		var extra sql.NullString
		if err := rows.Scan(&typ, &entity.ID, &entity.Name, &extra); err != nil {
			return nil, err
		}
		entity.Type = domain.MentionType(typ)
		if extra.Valid {
			entity.Extra = []byte(extra.String)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}
