package suggestion

import (
	"testing"
	"time"

	"church-roster/internal/alias"
	"church-roster/internal/availability"
	"church-roster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(s string) *time.Time {
	d := domain.MustDate(s)
	return &d
}

func assign(date string, role domain.Role, personID string) domain.ServiceAssignment {
	return domain.ServiceAssignment{ServiceDate: domain.MustDate(date), Role: role, PersonID: personID, RawName: personID}
}

func newEngine(t *testing.T, rows []domain.MetadataRow, weights Weights) *Engine {
	t.Helper()
	resolver, err := alias.NewResolver([]domain.AliasRow{
		{Alias: "A", PersonID: "person_a", DisplayName: "A", OccurrenceCount: 1},
		{Alias: "B", PersonID: "person_b", DisplayName: "B", OccurrenceCount: 1},
		{Alias: "C", PersonID: "person_c", DisplayName: "C", OccurrenceCount: 1},
	}, []domain.MergeRedirect{{SourceID: "person_a_old", TargetID: "person_a"}})
	require.NoError(t, err)
	return NewEngine(resolver, availability.NewStore(rows, resolver.Canonical), weights)
}

func ids(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.PersonID)
	}
	return out
}

func TestSuggest_UnavailableIsExcluded(t *testing.T) {
	e := newEngine(t, []domain.MetadataRow{
		{PersonID: "person_a", UnavailableStart: datePtr("2025-11-01"), UnavailableEnd: datePtr("2025-11-15"), UnavailableReason: "travel"},
	}, DefaultWeights())

	out, err := e.Suggest(Request{
		Date:  domain.MustDate("2025-11-10"),
		Roles: []domain.Role{domain.RoleLead},
		Flags: Flags{ConsiderAvailability: true},
	}, nil)
	require.NoError(t, err)

	lead := out[domain.RoleLead]
	assert.NotContains(t, ids(lead), "person_a")
	assert.Equal(t, []string{"person_b", "person_c"}, ids(lead))
	assert.Equal(t, 60, lead[0].Score)
	assert.Equal(t, []string{"available on 2025-11-10"}, lead[0].Reasons)
	assert.Empty(t, lead[0].Concerns)
}

func TestSuggest_UnavailableIgnoredWhenFlagOff(t *testing.T) {
	e := newEngine(t, []domain.MetadataRow{
		{PersonID: "person_a", UnavailableStart: datePtr("2025-11-01"), UnavailableReason: "sabbatical"},
	}, DefaultWeights())

	out, err := e.Suggest(Request{Date: domain.MustDate("2025-11-10"), Roles: []domain.Role{domain.RoleLead}}, nil)
	require.NoError(t, err)
	assert.Contains(t, ids(out[domain.RoleLead]), "person_a")
}

func TestSuggest_ScoresAndOrdering(t *testing.T) {
	e := newEngine(t, nil, DefaultWeights())

	out, err := e.Suggest(Request{
		Date:  domain.MustDate("2025-11-09"),
		Roles: []domain.Role{domain.RoleLead},
		Flags: AllFactors(),
	}, []domain.ServiceAssignment{
		assign("2025-09-07", domain.RoleLead, "person_a"),
		assign("2025-11-02", domain.RoleLead, "person_b"),
	})
	require.NoError(t, err)

	lead := out[domain.RoleLead]
	require.Len(t, lead, 3)
	assert.Equal(t, []string{"person_a", "person_c", "person_b"}, ids(lead))

	// 基础 50 + 可服事 10 + 无家庭冲突 10 + 岗位熟悉 15 + 久未服事该岗位 10
	assert.Equal(t, 95, lead[0].Score)
	assert.Contains(t, lead[0].Reasons, "last served as lead 63 days ago")
	// 最近窗口内没服事过，低于平均
	assert.Equal(t, 90, lead[1].Score)
	// 上周刚服事过
	assert.Equal(t, 65, lead[2].Score)
	assert.Equal(t, []string{"served 7 days ago (2025-11-02)"}, lead[2].Concerns)
}

func TestSuggest_FamilyPenaltyAndTies(t *testing.T) {
	e := newEngine(t, []domain.MetadataRow{
		{PersonID: "person_a", FamilyGroup: "fam-ab"},
		{PersonID: "person_b", FamilyGroup: "fam-ab"},
	}, DefaultWeights())

	out, err := e.Suggest(Request{
		Date:  domain.MustDate("2025-11-09"),
		Roles: []domain.Role{domain.RoleLead},
		Flags: Flags{ConsiderFamily: true},
	}, []domain.ServiceAssignment{assign("2025-11-09", domain.RoleTeam, "person_b")})
	require.NoError(t, err)

	lead := out[domain.RoleLead]
	assert.Equal(t, []string{"person_b", "person_c", "person_a"}, ids(lead))
	assert.Equal(t, 60, lead[0].Score)
	assert.Equal(t, 60, lead[1].Score)
	assert.Contains(t, lead[0].Concerns, "already assigned team on 2025-11-09")
	assert.Equal(t, 20, lead[2].Score)
	assert.Equal(t, []string{"family member B is serving this week"}, lead[2].Concerns)
}

func TestSuggest_NonPositiveScoresDropped(t *testing.T) {
	w := DefaultWeights()
	w.Base = 20
	e := newEngine(t, []domain.MetadataRow{
		{PersonID: "person_a", FamilyGroup: "fam-ab"},
		{PersonID: "person_b", FamilyGroup: "fam-ab"},
	}, w)

	out, err := e.Suggest(Request{
		Date:  domain.MustDate("2025-11-09"),
		Roles: []domain.Role{domain.RoleLead, domain.RolePianist},
		Flags: Flags{ConsiderFamily: true},
	}, []domain.ServiceAssignment{assign("2025-11-09", domain.RoleTeam, "person_b")})
	require.NoError(t, err)

	assert.NotContains(t, ids(out[domain.RoleLead]), "person_a")
	assert.Len(t, out[domain.RolePianist], 2)
}

func TestSuggest_LimitAndAllRoles(t *testing.T) {
	e := newEngine(t, nil, DefaultWeights())

	out, err := e.Suggest(Request{Date: domain.MustDate("2025-11-09"), Limit: 1}, nil)
	require.NoError(t, err)
	assert.Len(t, out, len(domain.AllRoles()))
	for _, cs := range out {
		require.Len(t, cs, 1)
		assert.Equal(t, "person_a", cs[0].PersonID)
	}
}

func TestSuggest_MergedIDsCountedOnce(t *testing.T) {
	e := newEngine(t, nil, DefaultWeights())

	out, err := e.Suggest(Request{
		Date:  domain.MustDate("2025-11-09"),
		Roles: []domain.Role{domain.RolePianist},
	}, []domain.ServiceAssignment{assign("2025-10-26", domain.RolePianist, "person_a_old")})
	require.NoError(t, err)

	pianist := out[domain.RolePianist]
	assert.Equal(t, []string{"person_a", "person_b", "person_c"}, ids(pianist))
	// 岗位熟悉 +15，两周前服事 -10
	assert.Equal(t, 55, pianist[0].Score)
}

func TestSuggest_EmptyRoleStillPresent(t *testing.T) {
	w := DefaultWeights()
	w.Base = 0
	e := newEngine(t, nil, w)

	out, err := e.Suggest(Request{Date: domain.MustDate("2025-11-09"), Roles: []domain.Role{domain.RoleReader}}, nil)
	require.NoError(t, err)
	cs, ok := out[domain.RoleReader]
	assert.True(t, ok)
	assert.Empty(t, cs)
}

func TestSuggest_Validation(t *testing.T) {
	e := newEngine(t, nil, DefaultWeights())

	_, err := e.Suggest(Request{}, nil)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = e.Suggest(Request{Date: domain.MustDate("2025-11-09"), Roles: []domain.Role{"drummer"}}, nil)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}
