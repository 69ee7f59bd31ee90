// Package metadata models the tables of a dataset, their columns, and the
// foreign-key relationships connecting them. A metadata snapshot is loaded
// once per request and treated as immutable for the rest of the request.
package metadata

// Relationship kinds as stored in the metadata catalog.
const (
	KindManyToOne = "many_to_one"
	KindOneToOne  = "one_to_one"
)

// Relationship is directional: the table holding this record has
// ForeignKeyColumn pointing at ReferencedTable.ReferencedColumn.
type Relationship struct {
	ForeignKeyColumn string `json:"foreign_key_column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	Kind             string `json:"kind,omitempty"`
}

// Column display types drive which aggregation shape a column gets.
const (
	DisplayCategorical = "categorical"
	DisplayNumeric     = "numeric"
)

// Column describes one attribute of a dataset table.
type Column struct {
	Name        string `json:"name"`
	DisplayType string `json:"display_type"`
}

// TableMetadata describes one logical table of a dataset and where its rows
// physically live in the analytical store.
type TableMetadata struct {
	Name          string         `json:"name"`
	PhysicalTable string         `json:"physical_table"`
	RowCount      int64          `json:"row_count"`
	Columns       []Column       `json:"columns,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// PathSegment is one hop of a relationship path. ViaColumn is always the
// foreign-key column of the hop: it lives on FromTable for a forward hop and
// on ToTable when Backward is set (the edge was walked parent to child).
type PathSegment struct {
	FromTable        string `json:"from_table"`
	ViaColumn        string `json:"via_column"`
	ToTable          string `json:"to_table"`
	ReferencedColumn string `json:"referenced_column"`
	Backward         bool   `json:"backward,omitempty"`
}

// LocalColumn is the join column on FromTable's side of the hop.
func (s PathSegment) LocalColumn() string {
	if s.Backward {
		return s.ReferencedColumn
	}
	return s.ViaColumn
}

// RemoteColumn is the join column on ToTable's side of the hop.
func (s PathSegment) RemoteColumn() string {
	if s.Backward {
		return s.ViaColumn
	}
	return s.ReferencedColumn
}

// TableByName returns the table with the given logical name.
func TableByName(tables []TableMetadata, name string) (TableMetadata, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableMetadata{}, false
}

// PhysicalTable resolves a logical table name to its physical store
// reference, falling back to the logical name for unknown tables.
func PhysicalTable(tables []TableMetadata, name string) string {
	if t, ok := TableByName(tables, name); ok && t.PhysicalTable != "" {
		return t.PhysicalTable
	}
	return name
}

// KnownColumns builds the per-table column-name sets used by the filter
// compiler to drop filters that do not apply to a table. Tables with no
// column metadata are omitted so filters against them are trusted as-is.
func KnownColumns(tables []TableMetadata) map[string]map[string]struct{} {
	known := make(map[string]map[string]struct{}, len(tables))
	for _, t := range tables {
		if len(t.Columns) == 0 {
			continue
		}
		cols := make(map[string]struct{}, len(t.Columns))
		for _, c := range t.Columns {
			cols[c.Name] = struct{}{}
		}
		known[t.Name] = cols
	}
	return known
}
