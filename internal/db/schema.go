package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS research_sessions (
  id TEXT PRIMARY KEY,
  query TEXT NOT NULL,
  complexity TEXT NOT NULL,
  use_pro_model INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  code TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  answer_text TEXT NOT NULL DEFAULT '',
  confidence REAL NOT NULL DEFAULT 0,
  rounds_completed INTEGER NOT NULL DEFAULT 0,
  cost_usd REAL NOT NULL DEFAULT 0,
  estimated_cost_usd REAL NOT NULL DEFAULT 0,
  warnings_json TEXT NOT NULL DEFAULT '[]',
  rounds_json TEXT NOT NULL DEFAULT '[]',
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_research_sessions_started_at ON research_sessions (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS research_sources (
  session_id TEXT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL,
  PRIMARY KEY (session_id, position)
)`,
}

// EnsureSchema creates the research tables when they are missing. Statements
// run one at a time since remote libsql rejects multi-statement batches.
func EnsureSchema(ctx context.Context, database *sql.DB) error {
	for _, statement := range schemaStatements {
		if _, err := database.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
