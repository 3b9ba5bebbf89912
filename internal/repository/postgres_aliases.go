package repository

import (
	"context"
	"database/sql"
	"fmt"

	"church-roster/internal/domain"

	"go.uber.org/zap"
)

// PostgresAliasRepository 别名表 PostgreSQL 实现
type PostgresAliasRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAliasRepository 创建别名表 Repository
func NewPostgresAliasRepository(db *sql.DB, logger *zap.Logger) *PostgresAliasRepository {
	return &PostgresAliasRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ AliasRepository = (*PostgresAliasRepository)(nil)

// ListAliases 按 person_id、alias 排序返回全部别名
func (r *PostgresAliasRepository) ListAliases(ctx context.Context) ([]domain.AliasRow, error) {
	query := `
		SELECT alias, person_id, display_name, occurrence_count
		FROM roster_aliases
		ORDER BY person_id, alias
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	out := []domain.AliasRow{}
	for rows.Next() {
		var a domain.AliasRow
		if err := rows.Scan(&a.Alias, &a.PersonID, &a.DisplayName, &a.OccurrenceCount); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aliases: %w", err)
	}
	return out, nil
}

// SaveAliases 在一个事务内整体覆盖别名表
func (r *PostgresAliasRepository) SaveAliases(ctx context.Context, items []domain.AliasRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roster_aliases`); err != nil {
		return fmt.Errorf("failed to clear aliases: %w", err)
	}

	insert := `
		INSERT INTO roster_aliases (alias, person_id, display_name, occurrence_count)
		VALUES ($1, $2, $3, $4)
	`
	for _, a := range items {
		if _, err := tx.ExecContext(ctx, insert, a.Alias, a.PersonID, a.DisplayName, a.OccurrenceCount); err != nil {
			return fmt.Errorf("failed to insert alias %q: %w", a.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aliases: %w", err)
	}
	r.logger.Debug("Aliases saved", zap.Int("count", len(items)))
	return nil
}

// ListRedirects 全部合并记录
func (r *PostgresAliasRepository) ListRedirects(ctx context.Context) ([]domain.MergeRedirect, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT source_id, target_id FROM roster_merge_redirects ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list redirects: %w", err)
	}
	defer rows.Close()

	out := []domain.MergeRedirect{}
	for rows.Next() {
		var m domain.MergeRedirect
		if err := rows.Scan(&m.SourceID, &m.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan redirect: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate redirects: %w", err)
	}
	return out, nil
}

// SaveRedirects 整体覆盖合并记录（链式合并会改写已有记录的 target）
func (r *PostgresAliasRepository) SaveRedirects(ctx context.Context, redirects []domain.MergeRedirect) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roster_merge_redirects`); err != nil {
		return fmt.Errorf("failed to clear redirects: %w", err)
	}
	for _, m := range redirects {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roster_merge_redirects (source_id, target_id) VALUES ($1, $2)`,
			m.SourceID, m.TargetID,
		); err != nil {
			return fmt.Errorf("failed to insert redirect %s: %w", m.SourceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redirects: %w", err)
	}
	return nil
}
