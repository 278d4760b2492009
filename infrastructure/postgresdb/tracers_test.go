package postgresdb

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyPrintSQL(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"single line": {
			in:   "SELECT 1",
			want: "SELECT 1",
		},
		"tabs and newlines": {
			in:   "SELECT a\n\tFROM t\nWHERE ( x = 1 )",
			want: "SELECT a FROM t WHERE(x = 1)",
		},
		"migrations table": {
			in:   createMigrationsTable,
			want: "CREATE TABLE IF NOT EXISTS schema_migrations(version TEXT PRIMARY KEY, checksum TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, prettyPrintSQL(tt.in))
		})
	}
}

func TestTraceLogAdapter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	trace := NewTraceLog(log)
	trace.Logger.Log(context.Background(), tracelog.LogLevelInfo, "Query", map[string]any{
		"sql":  "SELECT id\n\tFROM todos",
		"args": []any{1},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "pgx: Query", entry["msg"])
	assert.Equal(t, "SELECT id FROM todos", entry["sql"])
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel(tracelog.LogLevelTrace))
	assert.Equal(t, slog.LevelDebug, slogLevel(tracelog.LogLevelDebug))
	assert.Equal(t, slog.LevelInfo, slogLevel(tracelog.LogLevelInfo))
	assert.Equal(t, slog.LevelWarn, slogLevel(tracelog.LogLevelWarn))
	assert.Equal(t, slog.LevelError, slogLevel(tracelog.LogLevelError))
}
