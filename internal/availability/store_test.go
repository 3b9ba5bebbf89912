package availability

import (
	"testing"
	"time"

	"church-roster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(s string) *time.Time {
	d := domain.MustDate(s)
	return &d
}

func TestIsAvailable_InclusiveWindow(t *testing.T) {
	s := NewStore([]domain.MetadataRow{
		{
			PersonID:          "person_a",
			PersonName:        "A",
			UnavailableStart:  datePtr("2025-11-01"),
			UnavailableEnd:    datePtr("2025-11-15"),
			UnavailableReason: "travel",
		},
	}, nil)

	for d := domain.MustDate("2025-11-01"); !d.After(domain.MustDate("2025-11-15")); d = d.AddDate(0, 0, 1) {
		assert.False(t, s.IsAvailable("person_a", d), "expected unavailable on %s", domain.FormatDate(d))
	}
	assert.True(t, s.IsAvailable("person_a", domain.MustDate("2025-10-31")))
	assert.True(t, s.IsAvailable("person_a", domain.MustDate("2025-11-16")))

	w, ok := s.BlockingWindow("person_a", domain.MustDate("2025-11-10"))
	require.True(t, ok)
	assert.Equal(t, "travel", w.Reason)
}

func TestIsAvailable_NoDataMeansAvailable(t *testing.T) {
	s := NewStore(nil, nil)
	assert.True(t, s.IsAvailable("person_unknown", domain.MustDate("2025-11-10")))
	assert.Empty(t, s.WindowsFor("person_unknown"))
}

func TestIsAvailable_IndefiniteWindow(t *testing.T) {
	end, err := domain.ParseWindowEnd(domain.IndefiniteSentinel)
	require.NoError(t, err)
	require.Nil(t, end)

	s := NewStore([]domain.MetadataRow{
		{PersonID: "person_b", UnavailableStart: datePtr("2025-06-01"), UnavailableEnd: end, UnavailableReason: "moved away"},
	}, nil)
	assert.True(t, s.IsAvailable("person_b", domain.MustDate("2025-05-31")))
	assert.False(t, s.IsAvailable("person_b", domain.MustDate("2031-01-05")))
}

func TestAddWindow_RejectsInvertedRange(t *testing.T) {
	s := NewStore(nil, nil)
	err := s.AddWindow(domain.UnavailabilityWindow{
		PersonID: "person_a",
		Start:    domain.MustDate("2025-11-15"),
		End:      datePtr("2025-11-01"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.True(t, s.IsAvailable("person_a", domain.MustDate("2025-11-10")))
}

func TestAddWindow_OverlapUsesUnion(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.AddWindow(domain.UnavailabilityWindow{PersonID: "person_a", Start: domain.MustDate("2025-11-01"), End: datePtr("2025-11-10")}))
	require.NoError(t, s.AddWindow(domain.UnavailabilityWindow{PersonID: "person_a", Start: domain.MustDate("2025-11-05"), End: datePtr("2025-11-20")}))

	assert.False(t, s.IsAvailable("person_a", domain.MustDate("2025-11-01")))
	assert.False(t, s.IsAvailable("person_a", domain.MustDate("2025-11-20")))
	assert.True(t, s.IsAvailable("person_a", domain.MustDate("2025-11-21")))
	assert.Len(t, s.WindowsFor("person_a"), 2)
}

func TestNewStore_DirtyRowsBecomeIssues(t *testing.T) {
	s := NewStore([]domain.MetadataRow{
		{PersonID: "person_a", UnavailableStart: datePtr("2025-11-15"), UnavailableEnd: datePtr("2025-11-01")},
		{PersonID: "person_b", FamilyGroup: "fam-1", UpdatedAt: domain.MustDate("2025-10-02")},
		{PersonID: "person_b", FamilyGroup: "fam-2", UpdatedAt: domain.MustDate("2025-10-01")},
	}, nil)

	issues := s.Issues()
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, domain.KindInvariant, issue.Kind)
	}
	g, ok := s.FamilyOf("person_b")
	require.True(t, ok)
	assert.Equal(t, "fam-1", g)
	assert.Empty(t, s.WindowsFor("person_a"))
}

func TestFamilies(t *testing.T) {
	s := NewStore([]domain.MetadataRow{
		{PersonID: "person_b", FamilyGroup: "fam-1"},
		{PersonID: "person_a", FamilyGroup: "fam-1"},
		{PersonID: "person_c"},
	}, nil)

	assert.Equal(t, []string{"person_a", "person_b"}, s.FamilyMembers("fam-1"))
	_, ok := s.FamilyOf("person_c")
	assert.False(t, ok)

	require.NoError(t, s.SetFamily("person_b", "fam-2"))
	assert.Equal(t, []string{"person_a"}, s.FamilyMembers("fam-1"))
	assert.Equal(t, []domain.FamilyGroup{
		{GroupID: "fam-1", Members: []string{"person_a"}},
		{GroupID: "fam-2", Members: []string{"person_b"}},
	}, s.Groups())
}

func TestNewStore_CanonicalizesMergedIDs(t *testing.T) {
	canonical := func(id string) string {
		if id == "person_old" {
			return "person_new"
		}
		return id
	}
	s := NewStore([]domain.MetadataRow{
		{PersonID: "person_old", UnavailableStart: datePtr("2025-11-01"), UnavailableEnd: datePtr("2025-11-02")},
	}, canonical)
	assert.False(t, s.IsAvailable("person_new", domain.MustDate("2025-11-02")))
}
