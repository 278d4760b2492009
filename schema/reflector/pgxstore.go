package reflector

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
)

// PostgresStore implements the Store interface for PostgreSQL databases using pgx
type PostgresStore struct {
	db     pgxscan.Querier
	dbName string
}

// NewPostgresStore creates a new PostgreSQL store over a pool or transaction.
func NewPostgresStore(db pgxscan.Querier, dbName string) *PostgresStore {
	return &PostgresStore{
		db:     db,
		dbName: dbName,
	}
}

// GetDatabaseName implements the Store interface
func (s *PostgresStore) GetDatabaseName() string {
	return s.dbName
}

// GetSourceType implements the Store interface
func (s *PostgresStore) GetSourceType() string {
	return "postgres"
}

// GetTables implements the Store interface
func (s *PostgresStore) GetTables(ctx context.Context, schemaName string) ([]string, error) {
	query := `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	tables := []string{}
	if err := pgxscan.Select(ctx, s.db, &tables, query, schemaName); err != nil {
		return nil, err
	}
	return tables, nil
}

// GetColumns implements the Store interface
func (s *PostgresStore) GetColumns(ctx context.Context, schemaName, tableName string) ([]ColumnInfo, error) {
	query := `
		SELECT
			column_name::text AS column_name,
			udt_name::text AS udt_name,
			is_nullable::text = 'YES' AS is_nullable,
			column_default::text AS column_default,
			character_maximum_length::int8 AS character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position
	`

	var columns []ColumnInfo
	if err := pgxscan.Select(ctx, s.db, &columns, query, schemaName, tableName); err != nil {
		return nil, err
	}
	return columns, nil
}

// GetPrimaryKey implements the Store interface
func (s *PostgresStore) GetPrimaryKey(ctx context.Context, schemaName, tableName string) ([]string, error) {
	query := `
		SELECT kcu.column_name::text
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`

	var columns []string
	if err := pgxscan.Select(ctx, s.db, &columns, query, schemaName, tableName); err != nil {
		return nil, err
	}
	return columns, nil
}

// GetIndexes implements the Store interface
func (s *PostgresStore) GetIndexes(ctx context.Context, schemaName, tableName string) ([]IndexInfo, error) {
	query := `
		SELECT
			i.relname::text AS index_name,
			am.amname::text AS index_method,
			ix.indisunique AS is_unique,
			ARRAY_AGG(a.attname::text ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON i.relam = am.oid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND NOT ix.indisprimary
		GROUP BY i.relname, am.amname, ix.indisunique
		ORDER BY i.relname
	`

	var indexes []IndexInfo
	if err := pgxscan.Select(ctx, s.db, &indexes, query, schemaName, tableName); err != nil {
		return nil, err
	}
	return indexes, nil
}

// GetConstraints implements the Store interface
func (s *PostgresStore) GetConstraints(ctx context.Context, schemaName, tableName string) ([]ConstraintInfo, error) {
	query := `
		SELECT
			con.conname::text AS constraint_name,
			CASE con.contype
				WHEN 'c' THEN 'CHECK'
				WHEN 'u' THEN 'UNIQUE'
				WHEN 'x' THEN 'EXCLUDE'
			END AS constraint_type,
			pg_get_constraintdef(con.oid) AS constraint_definition
		FROM pg_constraint con
		JOIN pg_namespace nsp ON nsp.oid = con.connamespace
		JOIN pg_class cls ON cls.oid = con.conrelid
		WHERE nsp.nspname = $1
		  AND cls.relname = $2
		  AND con.contype IN ('c', 'u', 'x')
		ORDER BY con.conname
	`

	var constraints []ConstraintInfo
	if err := pgxscan.Select(ctx, s.db, &constraints, query, schemaName, tableName); err != nil {
		return nil, err
	}
	return constraints, nil
}
