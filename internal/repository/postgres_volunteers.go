package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"church-roster/internal/domain"

	"go.uber.org/zap"
)

// PostgresVolunteerRepository 同工资料表 PostgreSQL 实现
type PostgresVolunteerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresVolunteerRepository 创建同工资料 Repository
func NewPostgresVolunteerRepository(db *sql.DB, logger *zap.Logger) *PostgresVolunteerRepository {
	return &PostgresVolunteerRepository{db: db, logger: logger}
}

var _ VolunteerRepository = (*PostgresVolunteerRepository)(nil)

// ListMetadata 全部资料行
// unavailable_end 存的是哨兵日期 2099-12-31 时返回 nil（无限期）
func (r *PostgresVolunteerRepository) ListMetadata(ctx context.Context) ([]domain.MetadataRow, error) {
	query := `
		SELECT
			person_id,
			person_name,
			family_group,
			unavailable_start,
			unavailable_end,
			unavailable_reason,
			notes,
			updated_at
		FROM volunteer_metadata
		ORDER BY person_id, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list volunteer metadata: %w", err)
	}
	defer rows.Close()

	out := []domain.MetadataRow{}
	for rows.Next() {
		var (
			m          domain.MetadataRow
			start, end sql.NullTime
		)
		if err := rows.Scan(
			&m.PersonID,
			&m.PersonName,
			&m.FamilyGroup,
			&start,
			&end,
			&m.UnavailableReason,
			&m.Notes,
			&m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan volunteer metadata: %w", err)
		}
		if start.Valid {
			s := domain.TruncateDate(start.Time)
			m.UnavailableStart = &s
		}
		m.UnavailableEnd = windowEnd(end)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate volunteer metadata: %w", err)
	}
	return out, nil
}

// AddUnavailability 追加一行不可服事时段，家庭组沿用此人已有的值
func (r *PostgresVolunteerRepository) AddUnavailability(ctx context.Context, personName string, w domain.UnavailabilityWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO volunteer_metadata (
			person_id, person_name, family_group,
			unavailable_start, unavailable_end, unavailable_reason, notes, updated_at
		)
		SELECT $1, $2,
			COALESCE((SELECT family_group FROM volunteer_metadata WHERE person_id = $1 ORDER BY updated_at DESC LIMIT 1), ''),
			$3::date, $4::date, $5, $6, $7
	`
	_, err := r.db.ExecContext(ctx, query,
		w.PersonID,
		personName,
		domain.FormatDate(w.Start),
		domain.FormatWindowEnd(w.End),
		w.Reason,
		w.Notes,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add unavailability: %w", err)
	}
	r.logger.Info("Unavailability added",
		zap.String("person_id", w.PersonID),
		zap.String("window", w.Describe()),
	)
	return nil
}

// SetFamilyGroup 更新此人所有资料行的家庭组；没有资料行时新建一行
func (r *PostgresVolunteerRepository) SetFamilyGroup(ctx context.Context, personID, groupID string) error {
	if personID == "" {
		return domain.NewValidationError("person_id is required")
	}
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE volunteer_metadata SET family_group = $2, updated_at = $3 WHERE person_id = $1`,
		personID, groupID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update family group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO volunteer_metadata (person_id, family_group, updated_at) VALUES ($1, $2, $3)`,
		personID, groupID, now,
	); err != nil {
		return fmt.Errorf("failed to insert family group: %w", err)
	}
	return nil
}

// ReassignPerson 把 fromID 的资料行改挂到 toID
func (r *PostgresVolunteerRepository) ReassignPerson(ctx context.Context, fromID, toID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE volunteer_metadata SET person_id = $2, updated_at = $3 WHERE person_id = $1`,
		fromID, toID, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign volunteer metadata: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// ReplaceMetadata 事务内清空后逐行写入
// 没有结束日期的时段写哨兵日期，与 AddUnavailability 一致
func (r *PostgresVolunteerRepository) ReplaceMetadata(ctx context.Context, items []domain.MetadataRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM volunteer_metadata`); err != nil {
		return fmt.Errorf("failed to clear volunteer metadata: %w", err)
	}

	insert := `
		INSERT INTO volunteer_metadata (
			person_id, person_name, family_group,
			unavailable_start, unavailable_end, unavailable_reason, notes, updated_at
		)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8)
	`
	now := time.Now().UTC()
	for _, m := range items {
		var start, end any
		if m.UnavailableStart != nil {
			start = domain.FormatDate(*m.UnavailableStart)
			end = domain.FormatWindowEnd(m.UnavailableEnd)
		}
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err := tx.ExecContext(ctx, insert,
			m.PersonID, m.PersonName, m.FamilyGroup,
			start, end, m.UnavailableReason, m.Notes, updated,
		); err != nil {
			return fmt.Errorf("failed to insert volunteer metadata for %q: %w", m.PersonID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit volunteer metadata: %w", err)
	}
	r.logger.Debug("Volunteer metadata replaced", zap.Int("count", len(items)))
	return nil
}

func windowEnd(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	d := domain.TruncateDate(nt.Time)
	if domain.FormatDate(d) == domain.IndefiniteSentinel {
		return nil
	}
	return &d
}
