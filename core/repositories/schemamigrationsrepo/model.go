package schemamigrationsrepo

import "time"

// SchemaMigration is one row of the migrator's bookkeeping table.
type SchemaMigration struct {
	Version   string    `json:"version" db:"version"`
	Checksum  string    `json:"checksum" db:"checksum"`
	AppliedAt time.Time `json:"applied_at" db:"applied_at"`
}
