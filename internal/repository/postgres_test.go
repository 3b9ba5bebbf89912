package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"church-roster/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// ============================================
// 别名表
// ============================================

func TestPostgresAliases_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAliasRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{"alias", "person_id", "display_name", "occurrence_count"}).
		AddRow("张三", "person_张三", "张三", 5).
		AddRow("Zhang San", "person_张三", "张三", 2)
	mock.ExpectQuery(`SELECT alias, person_id, display_name, occurrence_count\s+FROM roster_aliases`).
		WillReturnRows(rows)

	got, err := repo.ListAliases(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AliasRow{Alias: "张三", PersonID: "person_张三", DisplayName: "张三", OccurrenceCount: 5}, got[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAliases_SaveReplacesInTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAliasRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM roster_aliases`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO roster_aliases`).
		WithArgs("张三", "person_张三", "张三", 5).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO roster_aliases`).
		WithArgs("李四", "person_李四", "李四", 1).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.SaveAliases(context.Background(), []domain.AliasRow{
		{Alias: "张三", PersonID: "person_张三", DisplayName: "张三", OccurrenceCount: 5},
		{Alias: "李四", PersonID: "person_李四", DisplayName: "李四", OccurrenceCount: 1},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAliases_SaveRollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAliasRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM roster_aliases`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO roster_aliases`).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.SaveAliases(context.Background(), []domain.AliasRow{{Alias: "张三", PersonID: "p1", DisplayName: "张三"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAliases_Redirects(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAliasRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT source_id, target_id FROM roster_merge_redirects`).
		WillReturnRows(sqlmock.NewRows([]string{"source_id", "target_id"}).AddRow("person_zhangsan", "person_张三"))
	got, err := repo.ListRedirects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.MergeRedirect{{SourceID: "person_zhangsan", TargetID: "person_张三"}}, got)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM roster_merge_redirects`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO roster_merge_redirects`).
		WithArgs("person_三哥", "person_张三").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.SaveRedirects(context.Background(), []domain.MergeRedirect{{SourceID: "person_三哥", TargetID: "person_张三"}}))

	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 同工资料
// ============================================

func TestPostgresVolunteers_ListConvertsSentinel(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	updated := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"person_id", "person_name", "family_group", "unavailable_start",
		"unavailable_end", "unavailable_reason", "notes", "updated_at",
	}).
		AddRow("person_a", "A", "fam-ab", domain.MustDate("2025-11-01"), domain.MustDate("2025-11-15"), "travel", "", updated).
		AddRow("person_a", "A", "fam-ab", domain.MustDate("2026-01-01"), domain.MustDate("2099-12-31"), "study", "", updated).
		AddRow("person_b", "B", "fam-ab", nil, nil, "", "", updated)
	mock.ExpectQuery(`FROM volunteer_metadata`).WillReturnRows(rows)

	got, err := repo.ListMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NotNil(t, got[0].UnavailableEnd)
	assert.Equal(t, "2025-11-15", domain.FormatDate(*got[0].UnavailableEnd))
	assert.Nil(t, got[1].UnavailableEnd)
	assert.NotNil(t, got[1].UnavailableStart)
	assert.Nil(t, got[2].UnavailableStart)
	assert.Equal(t, "fam-ab", got[2].FamilyGroup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_AddUnavailability(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO volunteer_metadata`).
		WithArgs("person_a", "A", "2025-11-01", "2099-12-31", "travel", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AddUnavailability(context.Background(), "A", domain.UnavailabilityWindow{
		PersonID: "person_a",
		Start:    domain.MustDate("2025-11-01"),
		Reason:   "travel",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_AddUnavailabilityRejectsInvertedWindow(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	end := domain.MustDate("2025-11-01")
	err := repo.AddUnavailability(context.Background(), "A", domain.UnavailabilityWindow{
		PersonID: "person_a",
		Start:    domain.MustDate("2025-11-15"),
		End:      &end,
	})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_SetFamilyGroupInsertsWhenMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE volunteer_metadata SET family_group`).
		WithArgs("person_c", "fam-cd", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO volunteer_metadata`).
		WithArgs("person_c", "fam-cd", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SetFamilyGroup(context.Background(), "person_c", "fam-cd"))

	mock.ExpectExec(`UPDATE volunteer_metadata SET family_group`).
		WithArgs("person_c", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.SetFamilyGroup(context.Background(), "person_c", ""))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_Reassign(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE volunteer_metadata SET person_id`).
		WithArgs("person_a", "person_b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ReassignPerson(context.Background(), "person_a", "person_b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_ReplaceMetadata(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	start := domain.MustDate("2025-11-01")
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM volunteer_metadata`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`INSERT INTO volunteer_metadata`).
		WithArgs("person_a", "A", "f1", nil, nil, "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO volunteer_metadata`).
		WithArgs("person_b", "B", "", "2025-11-01", domain.IndefiniteSentinel, "travel", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.ReplaceMetadata(context.Background(), []domain.MetadataRow{
		{PersonID: "person_a", PersonName: "A", FamilyGroup: "f1"},
		{PersonID: "person_b", PersonName: "B", UnavailableStart: &start, UnavailableReason: "travel"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVolunteers_ReplaceRollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresVolunteerRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM volunteer_metadata`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := repo.ReplaceMetadata(context.Background(), []domain.MetadataRow{{PersonID: "person_a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 岗位安排
// ============================================

func TestPostgresAssignments_ListWithFilter(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAssignmentRepository(db, zap.NewNop())

	period, err := domain.ParsePeriod("2025-11")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"service_date", "role", "person_id", "raw_name"}).
		AddRow(domain.MustDate("2025-11-02"), "lead", "person_张三", "张三").
		AddRow(domain.MustDate("2025-11-02"), "team", "", "")
	mock.ExpectQuery(`FROM service_assignments\s+WHERE 1=1 AND service_date BETWEEN \$1 AND \$2 AND role = ANY\(\$3\)`).
		WithArgs("2025-11-01", "2025-11-30", sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.ListAssignments(context.Background(), AssignmentFilter{
		Period: &period,
		Roles:  []domain.Role{domain.RoleLead, domain.RoleTeam},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RoleLead, got[0].Role)
	assert.True(t, got[1].Vacant())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssignments_ReplaceUsesCopy(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAssignmentRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM service_assignments`).WillReturnResult(sqlmock.NewResult(0, 10))
	prep := mock.ExpectPrepare(`COPY "service_assignments"`)
	prep.ExpectExec().WithArgs("2025-11-02", "lead", "person_张三", "张三").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("2025-11-02", "team", nil, "").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.ReplaceAssignments(context.Background(), []domain.ServiceAssignment{
		{ServiceDate: domain.MustDate("2025-11-02"), Role: domain.RoleLead, PersonID: "person_张三", RawName: "张三"},
		{ServiceDate: domain.MustDate("2025-11-02"), Role: domain.RoleTeam},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssignments_Reassign(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAssignmentRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE service_assignments SET person_id`).
		WithArgs("person_zhangsan", "person_张三").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ReassignPerson(context.Background(), "person_zhangsan", "person_张三")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	for range schemaStatements {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
