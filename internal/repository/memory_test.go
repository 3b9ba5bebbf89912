package repository

import (
	"context"
	"testing"
	"time"

	"church-roster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVolunteers_AddKeepsFamilyGroup(t *testing.T) {
	repo := NewMemoryVolunteerRepository([]domain.MetadataRow{
		{PersonID: "person_a", PersonName: "A", FamilyGroup: "fam-ab", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	ctx := context.Background()

	require.NoError(t, repo.AddUnavailability(ctx, "A", domain.UnavailabilityWindow{
		PersonID: "person_a",
		Start:    domain.MustDate("2025-11-01"),
		Reason:   "travel",
	}))

	rows, err := repo.ListMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "fam-ab", rows[1].FamilyGroup)
	assert.Nil(t, rows[1].UnavailableEnd)

	require.NoError(t, repo.SetFamilyGroup(ctx, "person_a", ""))
	rows, _ = repo.ListMetadata(ctx)
	for _, r := range rows {
		assert.Empty(t, r.FamilyGroup)
	}
}

func TestMemoryVolunteers_ReassignAndReplace(t *testing.T) {
	repo := NewMemoryVolunteerRepository([]domain.MetadataRow{
		{PersonID: "person_a", FamilyGroup: "f1"},
		{PersonID: "person_a", UnavailableStart: ptrDate("2025-11-01")},
		{PersonID: "person_c", FamilyGroup: "f1"},
	})
	ctx := context.Background()

	n, err := repo.ReassignPerson(ctx, "person_a", "person_b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.SetFamilyGroup(ctx, "person_b", ""))
	rows, _ := repo.ListMetadata(ctx)
	require.Len(t, rows, 3)
	assert.Empty(t, rows[0].FamilyGroup)
	assert.Equal(t, "person_b", rows[1].PersonID)
	assert.Equal(t, "f1", rows[2].FamilyGroup)

	require.NoError(t, repo.ReplaceMetadata(ctx, []domain.MetadataRow{{PersonID: "person_d", FamilyGroup: "f2"}}))
	rows, _ = repo.ListMetadata(ctx)
	assert.Equal(t, []domain.MetadataRow{{PersonID: "person_d", FamilyGroup: "f2"}}, rows)
}

func ptrDate(s string) *time.Time {
	d := domain.MustDate(s)
	return &d
}

func TestMemoryAssignments_FilterAndReassign(t *testing.T) {
	repo := NewMemoryAssignmentRepository([]domain.ServiceAssignment{
		{ServiceDate: domain.MustDate("2025-12-07"), Role: domain.RoleLead, PersonID: "p2"},
		{ServiceDate: domain.MustDate("2025-11-02"), Role: domain.RoleTeam, PersonID: "p1"},
		{ServiceDate: domain.MustDate("2025-11-02"), Role: domain.RoleLead, PersonID: "p1"},
	})
	ctx := context.Background()
	period, _ := domain.ParsePeriod("2025-11")

	got, err := repo.ListAssignments(ctx, AssignmentFilter{Period: &period, Roles: []domain.Role{domain.RoleLead}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PersonID)

	n, err := repo.ReassignPerson(ctx, "p1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, _ := repo.ListAssignments(ctx, AssignmentFilter{})
	for _, a := range all {
		assert.Equal(t, "p2", a.PersonID)
	}
}

func TestMemoryAliases_ListSorted(t *testing.T) {
	repo := NewMemoryAliasRepository(nil, nil)
	ctx := context.Background()
	require.NoError(t, repo.SaveAliases(ctx, []domain.AliasRow{
		{Alias: "b", PersonID: "p2"},
		{Alias: "z", PersonID: "p1"},
		{Alias: "a", PersonID: "p1"},
	}))
	rows, err := repo.ListAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z", "b"}, []string{rows[0].Alias, rows[1].Alias, rows[2].Alias})
}
