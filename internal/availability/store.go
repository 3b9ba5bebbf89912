package availability

import (
	"sort"
	"time"

	"church-roster/internal/domain"
)

// Store 同工可服事时间与家庭组
// 由同工资料表构建，只读查询；写操作只在内存里校验并生效，持久化由调用方负责
type Store struct {
	windows  map[string][]domain.UnavailabilityWindow
	families map[string]string   // person_id -> group_id
	members  map[string][]string // group_id -> person_id（已排序）
	names    map[string]string   // person_id -> person_name
	issues   []*domain.Error
}

// NewStore 从同工资料表构建
// 资料表是人工编辑的，脏数据（start > end、一人多个家庭组）不会让构建失败，
// 而是跳过该行并记为 Issues，由冲突检查以 warning 形式呈现
// canonical 用于把已合并掉的 person_id 解析为当前 id，可为 nil
func NewStore(rows []domain.MetadataRow, canonical func(string) string) *Store {
	s := &Store{
		windows:  make(map[string][]domain.UnavailabilityWindow),
		families: make(map[string]string),
		members:  make(map[string][]string),
		names:    make(map[string]string),
	}
	if canonical == nil {
		canonical = func(id string) string { return id }
	}

	// 同一个人多行时，以 updated_at 最新的家庭组为准
	sorted := make([]domain.MetadataRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	for _, row := range sorted {
		personID := canonical(row.PersonID)
		if personID == "" {
			continue
		}
		row.PersonID = personID
		if row.PersonName != "" {
			if _, ok := s.names[personID]; !ok {
				s.names[personID] = row.PersonName
			}
		}

		if row.FamilyGroup != "" {
			if current, ok := s.families[personID]; ok && current != row.FamilyGroup {
				s.issues = append(s.issues, domain.NewInvariantViolation(
					"%s is listed in family groups %s and %s; keeping %s", personID, current, row.FamilyGroup, current))
			} else if !ok {
				s.families[personID] = row.FamilyGroup
			}
		}

		if w, ok := row.Window(); ok {
			if err := w.Validate(); err != nil {
				s.issues = append(s.issues, domain.NewInvariantViolation("skipped unavailability window for %s: %v", personID, err))
				continue
			}
			s.windows[personID] = append(s.windows[personID], w)
		}
	}

	for personID := range s.windows {
		sortWindows(s.windows[personID])
	}
	s.rebuildMembers()
	return s
}

// IsAvailable 日期落在任一不可服事时段内（含两端）则 false；没有数据视为可服事
func (s *Store) IsAvailable(personID string, date time.Time) bool {
	_, blocked := s.BlockingWindow(personID, date)
	return !blocked
}

// BlockingWindow 返回覆盖该日期的第一个时段（按开始日期）
func (s *Store) BlockingWindow(personID string, date time.Time) (domain.UnavailabilityWindow, bool) {
	for _, w := range s.windows[personID] {
		if w.Contains(date) {
			return w, true
		}
	}
	return domain.UnavailabilityWindow{}, false
}

// WindowsFor 某人的全部不可服事时段（按开始日期）
func (s *Store) WindowsFor(personID string) []domain.UnavailabilityWindow {
	ws := s.windows[personID]
	out := make([]domain.UnavailabilityWindow, len(ws))
	copy(out, ws)
	return out
}

// FamilyOf 某人所属家庭组
func (s *Store) FamilyOf(personID string) (string, bool) {
	g, ok := s.families[personID]
	return g, ok
}

// FamilyMembers 家庭组成员（已排序）
func (s *Store) FamilyMembers(groupID string) []string {
	m := s.members[groupID]
	out := make([]string, len(m))
	copy(out, m)
	return out
}

// Groups 所有家庭组，按 group_id 排序
func (s *Store) Groups() []domain.FamilyGroup {
	out := make([]domain.FamilyGroup, 0, len(s.members))
	for g, m := range s.members {
		out = append(out, domain.FamilyGroup{GroupID: g, Members: append([]string(nil), m...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// PersonName 资料表里登记的名字
func (s *Store) PersonName(personID string) (string, bool) {
	n, ok := s.names[personID]
	return n, ok
}

// Issues 构建时发现的数据问题
func (s *Store) Issues() []*domain.Error {
	return append([]*domain.Error(nil), s.issues...)
}

// AddWindow 新增不可服事时段；start > end 返回 ValidationError
// 与已有时段重叠是允许的，可服事判断按并集处理
func (s *Store) AddWindow(w domain.UnavailabilityWindow) error {
	w.Start = domain.TruncateDate(w.Start)
	if w.End != nil {
		end := domain.TruncateDate(*w.End)
		w.End = &end
	}
	if err := w.Validate(); err != nil {
		return err
	}
	s.windows[w.PersonID] = append(s.windows[w.PersonID], w)
	sortWindows(s.windows[w.PersonID])
	return nil
}

// SetFamily 设置家庭组；groupID 为空表示移出家庭组
// 一个人同一时间只属于一个家庭组，设置新组会离开旧组
func (s *Store) SetFamily(personID, groupID string) error {
	if personID == "" {
		return domain.NewValidationError("person_id is required")
	}
	if groupID == "" {
		delete(s.families, personID)
	} else {
		s.families[personID] = groupID
	}
	s.rebuildMembers()
	return nil
}

func (s *Store) rebuildMembers() {
	s.members = make(map[string][]string)
	for p, g := range s.families {
		s.members[g] = append(s.members[g], p)
	}
	for g := range s.members {
		sort.Strings(s.members[g])
	}
}

func sortWindows(ws []domain.UnavailabilityWindow) {
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].Start.Equal(ws[j].Start) {
			return ws[i].Start.Before(ws[j].Start)
		}
		// 无限期的排在后面
		if ws[i].End == nil || ws[j].End == nil {
			return ws[j].End == nil && ws[i].End != nil
		}
		return ws[i].End.Before(*ws[j].End)
	})
}
