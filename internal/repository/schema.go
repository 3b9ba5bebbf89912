package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 建表语句（幂等）
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS roster_aliases (
		alias            TEXT PRIMARY KEY,
		person_id        TEXT NOT NULL,
		display_name     TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_roster_aliases_person ON roster_aliases (person_id)`,
	`CREATE TABLE IF NOT EXISTS roster_merge_redirects (
		source_id  TEXT PRIMARY KEY,
		target_id  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS volunteer_metadata (
		id                 BIGSERIAL PRIMARY KEY,
		person_id          TEXT NOT NULL,
		person_name        TEXT NOT NULL DEFAULT '',
		family_group       TEXT NOT NULL DEFAULT '',
		unavailable_start  DATE,
		unavailable_end    DATE,
		unavailable_reason TEXT NOT NULL DEFAULT '',
		notes              TEXT NOT NULL DEFAULT '',
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_volunteer_metadata_person ON volunteer_metadata (person_id)`,
	`CREATE TABLE IF NOT EXISTS service_assignments (
		service_date DATE NOT NULL,
		role         TEXT NOT NULL,
		person_id    TEXT,
		raw_name     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_assignments_date ON service_assignments (service_date)`,
}

// EnsureSchema 创建所需的表和索引
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
