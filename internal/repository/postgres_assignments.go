package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"church-roster/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresAssignmentRepository 岗位安排 PostgreSQL 实现
type PostgresAssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAssignmentRepository 创建岗位安排 Repository
func NewPostgresAssignmentRepository(db *sql.DB, logger *zap.Logger) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{db: db, logger: logger}
}

var _ AssignmentRepository = (*PostgresAssignmentRepository)(nil)

// ListAssignments 按 service_date、role、person_id 排序
func (r *PostgresAssignmentRepository) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]domain.ServiceAssignment, error) {
	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.Period != nil {
		where = append(where, fmt.Sprintf("service_date BETWEEN $%d AND $%d", argIdx, argIdx+1))
		args = append(args, domain.FormatDate(filter.Period.Start), domain.FormatDate(filter.Period.End))
		argIdx += 2
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roles = append(roles, string(role))
		}
		where = append(where, fmt.Sprintf("role = ANY($%d)", argIdx))
		args = append(args, pq.Array(roles))
		argIdx++
	}

	query := fmt.Sprintf(`
		SELECT service_date, role, COALESCE(person_id, ''), raw_name
		FROM service_assignments
		WHERE %s
		ORDER BY service_date, role, person_id
	`, strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := []domain.ServiceAssignment{}
	for rows.Next() {
		var (
			a    domain.ServiceAssignment
			role string
		)
		if err := rows.Scan(&a.ServiceDate, &role, &a.PersonID, &a.RawName); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.ServiceDate = domain.TruncateDate(a.ServiceDate)
		a.Role = domain.Role(role)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return out, nil
}

// ReplaceAssignments 事务内清空后批量写入（COPY）
func (r *PostgresAssignmentRepository) ReplaceAssignments(ctx context.Context, items []domain.ServiceAssignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM service_assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("service_assignments", "service_date", "role", "person_id", "raw_name"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, a := range items {
		var personID any
		if !a.Vacant() {
			personID = a.PersonID
		}
		if _, err := stmt.ExecContext(ctx, domain.FormatDate(a.ServiceDate), string(a.Role), personID, a.RawName); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy assignment: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignments: %w", err)
	}
	r.logger.Info("Assignments replaced", zap.Int("count", len(items)))
	return nil
}

// ReassignPerson 合并后把旧 person_id 的安排改挂到新 id
func (r *PostgresAssignmentRepository) ReassignPerson(ctx context.Context, fromID, toID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE service_assignments SET person_id = $2 WHERE person_id = $1`,
		fromID, toID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
