package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStoreDatasetTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, physical_table, row_count FROM dataset_tables").
		WithArgs("demo").
		WillReturnRows(sqlmock.NewRows([]string{"name", "physical_table", "row_count"}).
			AddRow("patients", "demo_patients", 120).
			AddRow("samples", "demo_samples", 450))
	mock.ExpectQuery("SELECT table_name, name, display_type FROM table_columns").
		WithArgs("demo").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "name", "display_type"}).
			AddRow("patients", "patient_id", "categorical").
			AddRow("patients", "age", "numeric").
			AddRow("samples", "sample_id", "categorical").
			AddRow("samples", "patient_id", "categorical"))
	mock.ExpectQuery("SELECT table_name, foreign_key_column, referenced_table, referenced_column, kind").
		WithArgs("demo").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "foreign_key_column", "referenced_table", "referenced_column", "kind"}).
			AddRow("samples", "patient_id", "patients", "patient_id", "many_to_one"))

	tables, err := NewSQLStore(db).DatasetTables(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, tables, 2)

	patients, ok := TableByName(tables, "patients")
	require.True(t, ok)
	assert.Equal(t, "demo_patients", patients.PhysicalTable)
	assert.Equal(t, int64(120), patients.RowCount)
	require.Len(t, patients.Columns, 2)
	assert.Equal(t, "age", patients.Columns[1].Name)
	assert.Empty(t, patients.Relationships)

	samples, ok := TableByName(tables, "samples")
	require.True(t, ok)
	require.Len(t, samples.Relationships, 1)
	assert.Equal(t, Relationship{
		ForeignKeyColumn: "patient_id",
		ReferencedTable:  "patients",
		ReferencedColumn: "patient_id",
		Kind:             KindManyToOne,
	}, samples.Relationships[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDatasetTables_UnknownDataset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, physical_table, row_count FROM dataset_tables").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name", "physical_table", "row_count"}))

	_, err = NewSQLStore(db).DatasetTables(context.Background(), "missing")
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "dataset", nfe.Kind)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPathSegmentJoinColumns(t *testing.T) {
	forward := PathSegment{FromTable: "samples", ViaColumn: "patient_id", ToTable: "patients", ReferencedColumn: "pid"}
	assert.Equal(t, "patient_id", forward.LocalColumn())
	assert.Equal(t, "pid", forward.RemoteColumn())

	backward := PathSegment{FromTable: "patients", ViaColumn: "patient_id", ToTable: "samples", ReferencedColumn: "pid", Backward: true}
	assert.Equal(t, "pid", backward.LocalColumn())
	assert.Equal(t, "patient_id", backward.RemoteColumn())
}

func TestKnownColumns(t *testing.T) {
	known := KnownColumns([]TableMetadata{
		{Name: "patients", Columns: []Column{{Name: "patient_id"}, {Name: "age"}}},
		{Name: "opaque"},
	})
	require.Contains(t, known, "patients")
	assert.Contains(t, known["patients"], "age")
	assert.NotContains(t, known, "opaque")
}

func TestPhysicalTableFallback(t *testing.T) {
	tables := []TableMetadata{{Name: "patients", PhysicalTable: "demo_patients"}, {Name: "bare"}}
	assert.Equal(t, "demo_patients", PhysicalTable(tables, "patients"))
	assert.Equal(t, "bare", PhysicalTable(tables, "bare"))
	assert.Equal(t, "unknown", PhysicalTable(tables, "unknown"))
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Kind: "table", Name: "samples"}
	assert.Equal(t, "table not found: samples", err.Error())
	assert.True(t, errors.As(error(err), new(*NotFoundError)))
}
