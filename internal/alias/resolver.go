package alias

import (
	"sort"

	"church-roster/internal/domain"
)

// PersonIDPrefix 新名字默认 person_id 的前缀
const PersonIDPrefix = "person_"

// KeepDisplayName 合并后保留哪一方的显示名
type KeepDisplayName string

const (
	KeepSource KeepDisplayName = "source"
	KeepTarget KeepDisplayName = "target"
)

// ParseKeep 解析 keep_display_name，空值默认保留 target
func ParseKeep(s string) (KeepDisplayName, error) {
	switch KeepDisplayName(s) {
	case "", KeepTarget:
		return KeepTarget, nil
	case KeepSource:
		return KeepSource, nil
	}
	return "", domain.NewValidationError("keep_display_name must be source or target, got %q", s)
}

type entry struct {
	key         string
	alias       string
	personID    string
	displayName string
	count       int
}

// Resolver 名字 -> person_id 的别名表
// 每个 normalize key 只对应一个条目，因此一个别名永远只映射到一个 person_id
// 非并发安全：调用方负责串行化 load-modify-save
type Resolver struct {
	entries   map[string]*entry
	redirects map[string]string // 已合并掉的 person_id -> 当前 person_id
}

// NewResolver 从别名表和合并记录构建
// 同一个 key 在表里出现多次且指向不同 person_id 时返回 InvariantViolation
func NewResolver(rows []domain.AliasRow, redirects []domain.MergeRedirect) (*Resolver, error) {
	r := &Resolver{
		entries:   make(map[string]*entry, len(rows)),
		redirects: make(map[string]string, len(redirects)),
	}

	for _, row := range rows {
		key := Normalize(row.Alias)
		if key == "" || row.PersonID == "" {
			continue
		}
		if existing, ok := r.entries[key]; ok {
			if existing.personID != row.PersonID {
				return nil, domain.NewInvariantViolation("alias %q maps to both %s and %s", row.Alias, existing.personID, row.PersonID)
			}
			existing.count += row.OccurrenceCount
			continue
		}
		display := row.DisplayName
		if display == "" {
			display = row.Alias
		}
		r.entries[key] = &entry{
			key:         key,
			alias:       row.Alias,
			personID:    row.PersonID,
			displayName: display,
			count:       row.OccurrenceCount,
		}
	}

	live := r.livePersons()
	for _, m := range redirects {
		if m.SourceID == "" || m.TargetID == "" || m.SourceID == m.TargetID {
			continue
		}
		// 表里仍有别名指向 source，说明它又被人工启用了，以别名表为准
		if live[m.SourceID] {
			continue
		}
		r.redirects[m.SourceID] = m.TargetID
	}
	return r, nil
}

// NewEmptyResolver 空别名表
func NewEmptyResolver() *Resolver {
	r, _ := NewResolver(nil, nil)
	return r
}

// DefaultPersonID 新名字的默认 person_id
func DefaultPersonID(name string) string {
	return PersonIDPrefix + Normalize(name)
}

// Resolve 查询名字对应的 person_id
func (r *Resolver) Resolve(name string) (string, bool) {
	e, ok := r.entries[Normalize(name)]
	if !ok {
		return "", false
	}
	return r.canonical(e.personID), true
}

// Partition 把计数器里的名字分成新名字和已有名字（均按字典序）
func (r *Resolver) Partition(counter Counter) (newNames, existing []string) {
	for _, name := range counter.Names() {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, ok := r.entries[key]; ok {
			existing = append(existing, name)
		} else {
			newNames = append(newNames, name)
		}
	}
	return newNames, existing
}

// CountUpdate 已有别名的计数变化
type CountUpdate struct {
	Alias    string `json:"alias"`
	PersonID string `json:"person_id"`
	Delta    int    `json:"delta"`
	Total    int    `json:"total"`
}

// SyncResult Sync 的输出
type SyncResult struct {
	Added         []domain.AliasRow `json:"added"`
	UpdatedCounts []CountUpdate     `json:"updated_counts"`
}

// Sync 把一批名字计数并入别名表
// 新名字：person_id = "person_" + key，display_name = 原名
// 已有名字：只累加 occurrence_count，不改 person_id / display_name（可能是人工改过的）
// 名字按字典序处理，同 key 的多种写法只会新建一个条目
func (r *Resolver) Sync(counter Counter) SyncResult {
	var res SyncResult
	for _, name := range counter.Names() {
		key := Normalize(name)
		if key == "" {
			continue
		}
		n := counter[name]

		if e, ok := r.entries[key]; ok {
			e.count += n
			res.UpdatedCounts = append(res.UpdatedCounts, CountUpdate{
				Alias:    name,
				PersonID: r.canonical(e.personID),
				Delta:    n,
				Total:    e.count,
			})
			continue
		}

		e := &entry{
			key:         key,
			alias:       name,
			personID:    PersonIDPrefix + key,
			displayName: name,
			count:       n,
		}
		r.entries[key] = e
		res.Added = append(res.Added, e.row())
	}
	return res
}

// MergeResult Merge 的输出
type MergeResult struct {
	SourceID         string `json:"source_id"`
	TargetID         string `json:"target_id"`
	MergedAliasCount int    `json:"merged_alias_count"`
	FinalDisplayName string `json:"final_display_name"`
}

// Merge 把 source 的所有别名改挂到 target
// 两边的 id 先沿合并记录解析到当前 id；解析后相同则什么都不做（重复合并幂等）
// 已指向 source 的旧合并记录会被改写为指向 target，链式合并不会留下中间 id
func (r *Resolver) Merge(sourceID, targetID string, keep KeepDisplayName) (MergeResult, error) {
	if keep == "" {
		keep = KeepTarget
	}
	if keep != KeepSource && keep != KeepTarget {
		return MergeResult{}, domain.NewValidationError("keep_display_name must be source or target, got %q", keep)
	}

	live := r.livePersons()
	src := r.canonical(sourceID)
	if !live[src] {
		return MergeResult{}, domain.NewNotFoundError("unknown source person_id: %s", sourceID)
	}
	tgt := r.canonical(targetID)
	if !live[tgt] {
		return MergeResult{}, domain.NewNotFoundError("unknown target person_id: %s", targetID)
	}

	if src == tgt {
		return MergeResult{
			SourceID:         sourceID,
			TargetID:         tgt,
			FinalDisplayName: r.displayNameOf(tgt),
		}, nil
	}

	final := r.displayNameOf(tgt)
	if keep == KeepSource {
		final = r.displayNameOf(src)
	}

	moved := 0
	for _, e := range r.entries {
		if e.personID == src {
			e.personID = tgt
			moved++
		}
	}
	for _, e := range r.entries {
		if e.personID == tgt {
			e.displayName = final
		}
	}

	for from, to := range r.redirects {
		if to == src {
			r.redirects[from] = tgt
		}
	}
	r.redirects[src] = tgt
	delete(r.redirects, tgt)

	return MergeResult{
		SourceID:         src,
		TargetID:         tgt,
		MergedAliasCount: moved,
		FinalDisplayName: final,
	}, nil
}

// Canonical 沿合并记录解析到当前 person_id
func (r *Resolver) Canonical(personID string) string {
	return r.canonical(personID)
}

// Known person_id 是否存在（当前的或已合并掉的）
func (r *Resolver) Known(personID string) bool {
	return r.livePersons()[r.canonical(personID)]
}

// DisplayName 当前显示名
func (r *Resolver) DisplayName(personID string) (string, bool) {
	id := r.canonical(personID)
	if !r.livePersons()[id] {
		return "", false
	}
	return r.displayNameOf(id), true
}

// Identities 按 person_id 聚合的身份列表
func (r *Resolver) Identities() []domain.PersonIdentity {
	byID := make(map[string]*domain.PersonIdentity)
	for _, e := range r.sortedEntries() {
		p, ok := byID[e.personID]
		if !ok {
			p = &domain.PersonIdentity{
				PersonID:    e.personID,
				DisplayName: r.displayNameOf(e.personID),
			}
			byID[e.personID] = p
		}
		p.Aliases = append(p.Aliases, e.alias)
		p.OccurrenceCount += e.count
	}

	out := make([]domain.PersonIdentity, 0, len(byID))
	for _, p := range byID {
		sort.Strings(p.Aliases)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out
}

// Rows 导出别名表，按 person_id、alias 排序
func (r *Resolver) Rows() []domain.AliasRow {
	entries := r.sortedEntries()
	rows := make([]domain.AliasRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, e.row())
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PersonID != rows[j].PersonID {
			return rows[i].PersonID < rows[j].PersonID
		}
		return rows[i].Alias < rows[j].Alias
	})
	return rows
}

// Redirects 导出合并记录，按 source_id 排序
func (r *Resolver) Redirects() []domain.MergeRedirect {
	out := make([]domain.MergeRedirect, 0, len(r.redirects))
	for from, to := range r.redirects {
		out = append(out, domain.MergeRedirect{SourceID: from, TargetID: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (e *entry) row() domain.AliasRow {
	return domain.AliasRow{
		Alias:           e.alias,
		PersonID:        e.personID,
		DisplayName:     e.displayName,
		OccurrenceCount: e.count,
	}
}

func (r *Resolver) canonical(id string) string {
	seen := make(map[string]bool)
	for {
		next, ok := r.redirects[id]
		if !ok || seen[id] {
			return id
		}
		seen[id] = true
		id = next
	}
}

func (r *Resolver) livePersons() map[string]bool {
	live := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		live[e.personID] = true
	}
	return live
}

// displayNameOf 出现次数最多的条目的显示名；并列时取 key 最小的
func (r *Resolver) displayNameOf(personID string) string {
	var best *entry
	for _, e := range r.sortedEntries() {
		if e.personID != personID {
			continue
		}
		if best == nil || e.count > best.count {
			best = e
		}
	}
	if best == nil {
		return ""
	}
	return best.displayName
}

func (r *Resolver) sortedEntries() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Assign 把原始记录解析为岗位安排
// 空单元格记为空缺；别名表里没有的名字用默认 person_id，交给冲突检查报告
func (r *Resolver) Assign(records []domain.RawRecord) []domain.ServiceAssignment {
	var out []domain.ServiceAssignment
	for _, rec := range records {
		date := domain.TruncateDate(rec.ServiceDate)
		for _, role := range domain.AllRoles() {
			cell, ok := rec.Names[role]
			if !ok {
				continue
			}
			names := SplitNames(cell)
			if len(names) == 0 {
				out = append(out, domain.ServiceAssignment{ServiceDate: date, Role: role})
				continue
			}
			for _, name := range names {
				personID, found := r.Resolve(name)
				if !found {
					personID = DefaultPersonID(name)
				}
				out = append(out, domain.ServiceAssignment{
					ServiceDate: date,
					Role:        role,
					PersonID:    personID,
					RawName:     name,
				})
			}
		}
	}
	domain.SortAssignments(out)
	return out
}
