package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"church-roster/internal/domain"
)

// MemoryAliasRepository DB 未启用时使用（CLI 本地工作簿、测试）
type MemoryAliasRepository struct {
	mu        sync.RWMutex
	aliases   []domain.AliasRow
	redirects []domain.MergeRedirect
}

func NewMemoryAliasRepository(rows []domain.AliasRow, redirects []domain.MergeRedirect) *MemoryAliasRepository {
	return &MemoryAliasRepository{
		aliases:   append([]domain.AliasRow(nil), rows...),
		redirects: append([]domain.MergeRedirect(nil), redirects...),
	}
}

var _ AliasRepository = (*MemoryAliasRepository)(nil)

func (r *MemoryAliasRepository) ListAliases(_ context.Context) ([]domain.AliasRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]domain.AliasRow{}, r.aliases...)
	sortAliasRows(out)
	return out, nil
}

func (r *MemoryAliasRepository) SaveAliases(_ context.Context, rows []domain.AliasRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = append([]domain.AliasRow{}, rows...)
	return nil
}

func (r *MemoryAliasRepository) ListRedirects(_ context.Context) ([]domain.MergeRedirect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.MergeRedirect{}, r.redirects...), nil
}

func (r *MemoryAliasRepository) SaveRedirects(_ context.Context, redirects []domain.MergeRedirect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append([]domain.MergeRedirect{}, redirects...)
	return nil
}

// MemoryVolunteerRepository 同工资料的内存实现
type MemoryVolunteerRepository struct {
	mu   sync.RWMutex
	rows []domain.MetadataRow
	now  func() time.Time
}

func NewMemoryVolunteerRepository(rows []domain.MetadataRow) *MemoryVolunteerRepository {
	return &MemoryVolunteerRepository{
		rows: append([]domain.MetadataRow(nil), rows...),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ VolunteerRepository = (*MemoryVolunteerRepository)(nil)

func (r *MemoryVolunteerRepository) ListMetadata(_ context.Context) ([]domain.MetadataRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.MetadataRow{}, r.rows...), nil
}

func (r *MemoryVolunteerRepository) AddUnavailability(_ context.Context, personName string, w domain.UnavailabilityWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row := domain.MetadataRow{
		PersonID:          w.PersonID,
		PersonName:        personName,
		FamilyGroup:       r.familyOfLocked(w.PersonID),
		UnavailableReason: w.Reason,
		Notes:             w.Notes,
		UpdatedAt:         r.now(),
	}
	start := w.Start
	row.UnavailableStart = &start
	if w.End != nil {
		end := *w.End
		row.UnavailableEnd = &end
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *MemoryVolunteerRepository) SetFamilyGroup(_ context.Context, personID, groupID string) error {
	if personID == "" {
		return domain.NewValidationError("person_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	found := false
	for i := range r.rows {
		if r.rows[i].PersonID == personID {
			r.rows[i].FamilyGroup = groupID
			r.rows[i].UpdatedAt = now
			found = true
		}
	}
	if !found {
		r.rows = append(r.rows, domain.MetadataRow{PersonID: personID, FamilyGroup: groupID, UpdatedAt: now})
	}
	return nil
}

func (r *MemoryVolunteerRepository) ReassignPerson(_ context.Context, fromID, toID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for i := range r.rows {
		if r.rows[i].PersonID == fromID {
			r.rows[i].PersonID = toID
			r.rows[i].UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *MemoryVolunteerRepository) ReplaceMetadata(_ context.Context, rows []domain.MetadataRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append([]domain.MetadataRow{}, rows...)
	return nil
}

func (r *MemoryVolunteerRepository) familyOfLocked(personID string) string {
	var (
		group  string
		latest time.Time
	)
	for _, row := range r.rows {
		if row.PersonID == personID && !row.UpdatedAt.Before(latest) {
			group, latest = row.FamilyGroup, row.UpdatedAt
		}
	}
	return group
}

// MemoryAssignmentRepository 岗位安排的内存实现
type MemoryAssignmentRepository struct {
	mu    sync.RWMutex
	items []domain.ServiceAssignment
}

func NewMemoryAssignmentRepository(items []domain.ServiceAssignment) *MemoryAssignmentRepository {
	r := &MemoryAssignmentRepository{}
	_ = r.ReplaceAssignments(context.Background(), items)
	return r
}

var _ AssignmentRepository = (*MemoryAssignmentRepository)(nil)

func (r *MemoryAssignmentRepository) ListAssignments(_ context.Context, filter AssignmentFilter) ([]domain.ServiceAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make(map[domain.Role]bool, len(filter.Roles))
	for _, role := range filter.Roles {
		roles[role] = true
	}
	out := []domain.ServiceAssignment{}
	for _, a := range r.items {
		if filter.Period != nil && !filter.Period.Contains(a.ServiceDate) {
			continue
		}
		if len(roles) > 0 && !roles[a.Role] {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *MemoryAssignmentRepository) ReplaceAssignments(_ context.Context, items []domain.ServiceAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]domain.ServiceAssignment{}, items...)
	domain.SortAssignments(r.items)
	return nil
}

func (r *MemoryAssignmentRepository) ReassignPerson(_ context.Context, fromID, toID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.items {
		if r.items[i].PersonID == fromID {
			r.items[i].PersonID = toID
			n++
		}
	}
	if n > 0 {
		domain.SortAssignments(r.items)
	}
	return n, nil
}

// sortAliasRows 与 Postgres 的 ORDER BY person_id, alias 保持一致
func sortAliasRows(rows []domain.AliasRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PersonID != rows[j].PersonID {
			return rows[i].PersonID < rows[j].PersonID
		}
		return rows[i].Alias < rows[j].Alias
	})
}
