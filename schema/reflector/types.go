package reflector

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReflectedSchema represents the complete schema reflection for a single database schema
type ReflectedSchema struct {
	Source      string                `json:"source"`       // Database type (e.g., "postgres")
	Database    string                `json:"database"`     // Database name
	SchemaName  string                `json:"schema_name"`  // Schema name (e.g., "public")
	ReflectedAt time.Time             `json:"reflected_at"` // Timestamp of reflection
	Tables      map[string]*TableInfo `json:"tables"`       // Map of table_name -> TableInfo
}

// TableInfo represents a single table's metadata
type TableInfo struct {
	TableName   string           `json:"table_name"`
	Schema      string           `json:"schema"`
	PrimaryKey  []string         `json:"primary_key"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	Constraints []ConstraintInfo `json:"constraints"`
}

// Column returns the named column.
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// ColumnInfo represents a single column's metadata
type ColumnInfo struct {
	Name         string  `json:"name" db:"column_name"`
	DBType       string  `json:"db_type" db:"udt_name"` // e.g. "uuid", "text", "timestamptz"
	IsNullable   bool    `json:"is_nullable" db:"is_nullable"`
	DefaultValue *string `json:"default_value,omitempty" db:"column_default"`
	MaxLength    *int64  `json:"max_length,omitempty" db:"character_maximum_length"`
	IsPrimaryKey bool    `json:"is_primary_key" db:"-"`
}

// IndexInfo represents an index
type IndexInfo struct {
	Name    string   `json:"name" db:"index_name"`
	Columns []string `json:"columns" db:"column_names"`
	Unique  bool     `json:"unique" db:"is_unique"`
	Method  string   `json:"method" db:"index_method"` // btree, hash, gin, gist, etc.
}

// ConstraintInfo represents a table constraint (CHECK, UNIQUE, EXCLUDE)
type ConstraintInfo struct {
	Name       string `json:"name" db:"constraint_name"`
	Type       string `json:"type" db:"constraint_type"`             // CHECK, UNIQUE, EXCLUDE
	Definition string `json:"definition" db:"constraint_definition"` // The constraint expression
}

// Store is the interface that database stores must implement for reflection
type Store interface {
	// GetTables returns all table names in the schema
	GetTables(ctx context.Context, schemaName string) ([]string, error)

	// GetColumns returns column metadata for a table
	GetColumns(ctx context.Context, schemaName, tableName string) ([]ColumnInfo, error)

	// GetPrimaryKey returns the primary key columns in key order
	GetPrimaryKey(ctx context.Context, schemaName, tableName string) ([]string, error)

	// GetIndexes returns non primary key indexes
	GetIndexes(ctx context.Context, schemaName, tableName string) ([]IndexInfo, error)

	// GetConstraints returns constraint information
	GetConstraints(ctx context.Context, schemaName, tableName string) ([]ConstraintInfo, error)

	GetDatabaseName() string
	GetSourceType() string
}

// TableExpectation is the shape a store relies on: column name to udt name.
// Columns not listed are ignored.
type TableExpectation struct {
	Table   string
	Columns map[string]string
}

// SchemaMismatchError lists every difference Verify found.
type SchemaMismatchError struct {
	Schema   string
	Problems []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema %s does not match the application: %s", e.Schema, strings.Join(e.Problems, "; "))
}
