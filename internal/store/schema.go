package store

import (
	"context"
	"fmt"
)

// schemaStatements returns the DDL for the notice table and the run ledger.
// pgx runs each Exec over the extended protocol, which rejects multi-statement
// strings, so the schema is a slice rather than one script.
func schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	entry_type TEXT NOT NULL,
	date_recall_issued DATE,
	date_issued DATE,
	product_name TEXT,
	product_type TEXT,
	manufacturer TEXT,
	recalling_firm TEXT,
	batch_numbers TEXT,
	manufacturing_date TEXT,
	expiry_date TEXT,
	reason_for_recall TEXT,
	source_url TEXT,
	pdf_path TEXT,
	alert_title TEXT,
	alert_pdf_filename TEXT,
	press_release_title TEXT,
	press_release_date DATE,
	press_release_pdf_link TEXT,
	all_text TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_entry_type ON %[1]s (entry_type)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_date_issued ON %[1]s (date_issued)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_date_recall_issued ON %[1]s (date_recall_issued)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s (created_at)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_source_url ON %[1]s (source_url) WHERE source_url IS NOT NULL`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_recall_key ON %[1]s (product_name, date_recall_issued) WHERE source_url IS NULL AND entry_type = 'recall'`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_alert_key ON %[1]s (alert_title, date_issued) WHERE source_url IS NULL AND entry_type = 'alert'`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_press_key ON %[1]s (press_release_title, press_release_date) WHERE source_url IS NULL AND entry_type = 'press_release'`, table),
		`CREATE TABLE IF NOT EXISTS scrape_runs (
	id UUID PRIMARY KEY,
	category TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	fallback INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at ON scrape_runs (started_at)`,
	}
}

// InitSchema creates the notice table, its indexes, and the run ledger if
// they do not exist yet. Statements are idempotent so the command is safe to
// rerun.
func (s *Store) InitSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	for _, stmt := range schemaStatements(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
