package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// Store loads dataset table metadata. Implementations must be safe for
// concurrent use; callers load once per request and reuse the snapshot.
type Store interface {
	DatasetTables(ctx context.Context, datasetID string) ([]TableMetadata, error)
}

// SQLStore reads the metadata catalog from a relational handle (SQLite in
// production, sqlmock in tests). The catalog has three tables:
//
//	dataset_tables(dataset_id, name, physical_table, row_count)
//	table_columns(dataset_id, table_name, name, display_type, position)
//	table_relationships(dataset_id, table_name, foreign_key_column,
//	                    referenced_table, referenced_column, kind, position)
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a metadata store backed by db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DatasetTables returns every table of the dataset with its columns and
// relationships populated. Relationship order follows the catalog's position
// column, which keeps path discovery deterministic across requests.
func (s *SQLStore) DatasetTables(ctx context.Context, datasetID string) ([]TableMetadata, error) {
	tables, err := s.loadTables(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, &NotFoundError{Kind: "dataset", Name: datasetID}
	}

	byName := make(map[string]*TableMetadata, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	if err := s.loadColumns(ctx, datasetID, byName); err != nil {
		return nil, err
	}
	if err := s.loadRelationships(ctx, datasetID, byName); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *SQLStore) loadTables(ctx context.Context, datasetID string) ([]TableMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, physical_table, row_count FROM dataset_tables WHERE dataset_id = ? ORDER BY name`,
		datasetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset tables: %w", err)
	}
	defer rows.Close()

	var tables []TableMetadata
	for rows.Next() {
		var t TableMetadata
		if err := rows.Scan(&t.Name, &t.PhysicalTable, &t.RowCount); err != nil {
			return nil, fmt.Errorf("failed to scan dataset table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset tables: %w", err)
	}
	return tables, nil
}

func (s *SQLStore) loadColumns(ctx context.Context, datasetID string, byName map[string]*TableMetadata) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, name, display_type FROM table_columns WHERE dataset_id = ? ORDER BY table_name, position`,
		datasetID,
	)
	if err != nil {
		return fmt.Errorf("failed to load table columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.DisplayType); err != nil {
			return fmt.Errorf("failed to scan table column: %w", err)
		}
		if t, ok := byName[tableName]; ok {
			t.Columns = append(t.Columns, col)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table columns: %w", err)
	}
	return nil
}

func (s *SQLStore) loadRelationships(ctx context.Context, datasetID string, byName map[string]*TableMetadata) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, foreign_key_column, referenced_table, referenced_column, kind
		 FROM table_relationships WHERE dataset_id = ? ORDER BY table_name, position`,
		datasetID,
	)
	if err != nil {
		return fmt.Errorf("failed to load table relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var rel Relationship
		if err := rows.Scan(&tableName, &rel.ForeignKeyColumn, &rel.ReferencedTable, &rel.ReferencedColumn, &rel.Kind); err != nil {
			return fmt.Errorf("failed to scan table relationship: %w", err)
		}
		if t, ok := byName[tableName]; ok {
			t.Relationships = append(t.Relationships, rel)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table relationships: %w", err)
	}
	return nil
}
