// Package reflector reads table metadata out of the database and checks it
// against what the stores expect.
package reflector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// Reflector is the repository layer that orchestrates schema reflection
// It uses a Store (dependency injected) to query the database
type Reflector struct {
	store Store
}

// NewReflector creates a new Reflector with the given store
func NewReflector(store Store) *Reflector {
	return &Reflector{
		store: store,
	}
}

// Reflect queries the database via the store and returns a complete schema reflection
func (r *Reflector) Reflect(ctx context.Context, schemaName string) (*ReflectedSchema, error) {
	schema := &ReflectedSchema{
		Source:      r.store.GetSourceType(),
		Database:    r.store.GetDatabaseName(),
		SchemaName:  schemaName,
		ReflectedAt: time.Now().UTC(),
		Tables:      make(map[string]*TableInfo),
	}

	tables, err := r.store.GetTables(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}

	for _, tableName := range tables {
		table, err := r.reflectTable(ctx, schemaName, tableName)
		if err != nil {
			return nil, err
		}
		schema.Tables[tableName] = table
	}

	return schema, nil
}

func (r *Reflector) reflectTable(ctx context.Context, schemaName, tableName string) (*TableInfo, error) {
	columns, err := r.store.GetColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", tableName, err)
	}

	pk, err := r.store.GetPrimaryKey(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("get primary key for %s: %w", tableName, err)
	}
	for i := range columns {
		columns[i].IsPrimaryKey = slices.Contains(pk, columns[i].Name)
	}

	indexes, err := r.store.GetIndexes(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("get indexes for %s: %w", tableName, err)
	}

	constraints, err := r.store.GetConstraints(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("get constraints for %s: %w", tableName, err)
	}

	return &TableInfo{
		TableName:   tableName,
		Schema:      schemaName,
		PrimaryKey:  pk,
		Columns:     columns,
		Indexes:     indexes,
		Constraints: constraints,
	}, nil
}

// Verify checks that every expected table exists with the expected column
// types. All differences are collected into one *SchemaMismatchError.
func (r *Reflector) Verify(ctx context.Context, schemaName string, expected ...TableExpectation) error {
	tables, err := r.store.GetTables(ctx, schemaName)
	if err != nil {
		return fmt.Errorf("get tables: %w", err)
	}

	var problems []string
	for _, exp := range expected {
		if !slices.Contains(tables, exp.Table) {
			problems = append(problems, fmt.Sprintf("table %s is missing", exp.Table))
			continue
		}

		columns, err := r.store.GetColumns(ctx, schemaName, exp.Table)
		if err != nil {
			return fmt.Errorf("get columns for %s: %w", exp.Table, err)
		}
		table := &TableInfo{TableName: exp.Table, Columns: columns}

		for _, name := range slices.Sorted(maps.Keys(exp.Columns)) {
			want := exp.Columns[name]
			col, ok := table.Column(name)
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("column %s.%s is missing", exp.Table, name))
			case col.DBType != want:
				problems = append(problems, fmt.Sprintf("column %s.%s is %s, want %s", exp.Table, name, col.DBType, want))
			}
		}
	}

	if len(problems) > 0 {
		return &SchemaMismatchError{Schema: schemaName, Problems: problems}
	}
	return nil
}

// WriteJSON writes the schema as indented JSON.
func WriteJSON(w io.Writer, schema *ReflectedSchema) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(schema)
}
