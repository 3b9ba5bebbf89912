package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"church-roster/internal/domain"
)

// DefaultOverloadThreshold 一个周期内超过该次数视为过劳
const DefaultOverloadThreshold = 3

// Directory 身份查询（alias.Resolver 实现）
type Directory interface {
	Canonical(personID string) string
	Known(personID string) bool
	DisplayName(personID string) (string, bool)
}

// Availability 可服事与家庭组查询（availability.Store 实现）
type Availability interface {
	BlockingWindow(personID string, date time.Time) (domain.UnavailabilityWindow, bool)
	FamilyOf(personID string) (string, bool)
	Groups() []domain.FamilyGroup
	Issues() []*domain.Error
}

// Flags 要执行的检查项
type Flags struct {
	CheckFamily       bool `json:"check_family"`
	CheckAvailability bool `json:"check_availability"`
	CheckOverload     bool `json:"check_overload"`
}

// AllChecks 全部检查
func AllChecks() Flags {
	return Flags{CheckFamily: true, CheckAvailability: true, CheckOverload: true}
}

// Summary 按类型、严重程度计数
type Summary struct {
	Total      int                         `json:"total"`
	ByType     map[domain.ConflictType]int `json:"by_type"`
	BySeverity map[domain.Severity]int     `json:"by_severity"`
}

// Result Check 的输出
type Result struct {
	Period    string            `json:"period"`
	Conflicts []domain.Conflict `json:"conflicts"`
	Summary   Summary           `json:"summary"`
}

// HasErrors 是否存在 error 级冲突
func (r Result) HasErrors() bool {
	return r.Summary.BySeverity[domain.SeverityError] > 0
}

// Detector 排班冲突检测，纯读
type Detector struct {
	directory         Directory
	availability      Availability
	overloadThreshold int
}

// NewDetector 创建冲突检测器；overloadThreshold <= 0 时使用默认值
func NewDetector(directory Directory, availability Availability, overloadThreshold int) *Detector {
	if overloadThreshold <= 0 {
		overloadThreshold = DefaultOverloadThreshold
	}
	return &Detector{
		directory:         directory,
		availability:      availability,
		overloadThreshold: overloadThreshold,
	}
}

// Check 检查周期内的排班
// 输出顺序确定：周升序，error 先于 warning，类型名升序，再按涉及人员与描述
func (d *Detector) Check(period domain.Period, assignments []domain.ServiceAssignment, flags Flags) Result {
	inPeriod := make([]domain.ServiceAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Vacant() || !period.Contains(a.ServiceDate) {
			continue
		}
		a.PersonID = d.directory.Canonical(a.PersonID)
		inPeriod = append(inPeriod, a)
	}
	weeks := domain.GroupByWeek(inPeriod)

	var conflicts []domain.Conflict
	conflicts = append(conflicts, d.dataIssues(weeks, flags)...)
	if flags.CheckFamily {
		conflicts = append(conflicts, d.familyConflicts(weeks)...)
	}
	if flags.CheckAvailability {
		conflicts = append(conflicts, d.unavailabilityConflicts(weeks)...)
	}
	if flags.CheckOverload {
		conflicts = append(conflicts, d.overloadConflicts(period, weeks)...)
	}

	sortConflicts(conflicts)
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}
	return Result{
		Period:    period.String(),
		Conflicts: conflicts,
		Summary:   summarize(conflicts),
	}
}

func (d *Detector) familyConflicts(weeks []domain.ServiceWeek) []domain.Conflict {
	var out []domain.Conflict
	for _, week := range weeks {
		// group_id -> person_id -> roles
		byGroup := make(map[string]map[string][]domain.Role)
		for _, a := range week.Assignments {
			group, ok := d.availability.FamilyOf(a.PersonID)
			if !ok {
				continue
			}
			if byGroup[group] == nil {
				byGroup[group] = make(map[string][]domain.Role)
			}
			byGroup[group][a.PersonID] = append(byGroup[group][a.PersonID], a.Role)
		}

		for _, group := range sortedKeys(byGroup) {
			persons := byGroup[group]
			if len(persons) < 2 {
				continue
			}
			affected := d.affected(persons)
			parts := make([]string, 0, len(affected))
			for _, p := range affected {
				parts = append(parts, fmt.Sprintf("%s (%s)", p.DisplayName, joinRoles(p.Roles)))
			}
			out = append(out, domain.Conflict{
				Type:            domain.ConflictFamily,
				Severity:        domain.SeverityWarning,
				Week:            domain.FormatDate(week.Week),
				Description:     fmt.Sprintf("family group %s has %d members serving in the week of %s: %s", group, len(affected), domain.FormatDate(week.Week), strings.Join(parts, ", ")),
				AffectedPersons: affected,
				Suggestion:      "move one of them to a different week",
			})
		}
	}
	return out
}

func (d *Detector) unavailabilityConflicts(weeks []domain.ServiceWeek) []domain.Conflict {
	var out []domain.Conflict
	for _, week := range weeks {
		for _, a := range week.Assignments {
			w, blocked := d.availability.BlockingWindow(a.PersonID, a.ServiceDate)
			if !blocked {
				continue
			}
			name := d.displayName(a.PersonID)
			out = append(out, domain.Conflict{
				Type:        domain.ConflictUnavailability,
				Severity:    domain.SeverityError,
				Week:        domain.FormatDate(week.Week),
				Description: fmt.Sprintf("%s is assigned %s on %s but is unavailable %s", name, a.Role, domain.FormatDate(a.ServiceDate), w.Describe()),
				AffectedPersons: []domain.AffectedPerson{{
					PersonID:    a.PersonID,
					DisplayName: name,
					Roles:       []domain.Role{a.Role},
				}},
				Suggestion: fmt.Sprintf("find a replacement for %s on %s", a.Role, domain.FormatDate(a.ServiceDate)),
			})
		}
	}
	return out
}

func (d *Detector) overloadConflicts(period domain.Period, weeks []domain.ServiceWeek) []domain.Conflict {
	counts := make(map[string]int)
	crossed := make(map[string]time.Time)
	roles := make(map[string][]domain.Role)
	for _, week := range weeks {
		for _, a := range week.Assignments {
			counts[a.PersonID]++
			roles[a.PersonID] = append(roles[a.PersonID], a.Role)
			if counts[a.PersonID] == d.overloadThreshold+1 {
				crossed[a.PersonID] = week.Week
			}
		}
	}

	var out []domain.Conflict
	for _, personID := range sortedKeys(counts) {
		n := counts[personID]
		if n <= d.overloadThreshold {
			continue
		}
		name := d.displayName(personID)
		out = append(out, domain.Conflict{
			Type:        domain.ConflictOverload,
			Severity:    domain.SeverityWarning,
			Week:        domain.FormatDate(crossed[personID]),
			Description: fmt.Sprintf("%s is assigned %d times in %s (threshold %d)", name, n, period, d.overloadThreshold),
			AffectedPersons: []domain.AffectedPerson{{
				PersonID:    personID,
				DisplayName: name,
				Roles:       uniqueRoles(roles[personID]),
			}},
			Suggestion: "spread these assignments across other volunteers",
		})
	}
	return out
}

// dataIssues 数据不一致以 warning 呈现，不影响其它检查结果
func (d *Detector) dataIssues(weeks []domain.ServiceWeek, flags Flags) []domain.Conflict {
	var out []domain.Conflict
	if !flags.CheckFamily && !flags.CheckAvailability && !flags.CheckOverload {
		return out
	}

	for _, issue := range d.availability.Issues() {
		out = append(out, domain.Conflict{
			Type:        domain.ConflictDataInconsistency,
			Severity:    domain.SeverityWarning,
			Description: issue.Message,
			Suggestion:  "fix the volunteer metadata sheet",
		})
	}

	if flags.CheckFamily {
		for _, g := range d.availability.Groups() {
			if len(g.Members) >= 2 {
				continue
			}
			out = append(out, domain.Conflict{
				Type:            domain.ConflictDataInconsistency,
				Severity:        domain.SeverityWarning,
				Description:     fmt.Sprintf("family group %s has no other matching members", g.GroupID),
				AffectedPersons: d.affectedIDs(g.Members),
				Suggestion:      "check the family_group column for typos",
			})
		}
	}

	for _, week := range weeks {
		seen := make(map[string]bool)
		for _, a := range week.Assignments {
			if d.directory.Known(a.PersonID) || seen[a.PersonID] {
				continue
			}
			seen[a.PersonID] = true
			out = append(out, domain.Conflict{
				Type:        domain.ConflictDataInconsistency,
				Severity:    domain.SeverityWarning,
				Week:        domain.FormatDate(week.Week),
				Description: fmt.Sprintf("assignment on %s references %q which is not in the alias table", domain.FormatDate(a.ServiceDate), a.RawName),
				AffectedPersons: []domain.AffectedPerson{{
					PersonID:    a.PersonID,
					DisplayName: a.RawName,
					Roles:       []domain.Role{a.Role},
				}},
				Suggestion: "run alias sync before checking",
			})
		}
	}
	return out
}

func (d *Detector) displayName(personID string) string {
	if name, ok := d.directory.DisplayName(personID); ok {
		return name
	}
	return personID
}

func (d *Detector) affected(persons map[string][]domain.Role) []domain.AffectedPerson {
	out := make([]domain.AffectedPerson, 0, len(persons))
	for _, id := range sortedKeys(persons) {
		out = append(out, domain.AffectedPerson{
			PersonID:    id,
			DisplayName: d.displayName(id),
			Roles:       uniqueRoles(persons[id]),
		})
	}
	return out
}

func (d *Detector) affectedIDs(ids []string) []domain.AffectedPerson {
	out := make([]domain.AffectedPerson, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.AffectedPerson{PersonID: id, DisplayName: d.displayName(id)})
	}
	return out
}

func sortConflicts(cs []domain.Conflict) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if ka, kb := personsKey(a), personsKey(b); ka != kb {
			return ka < kb
		}
		return a.Description < b.Description
	})
}

func summarize(cs []domain.Conflict) Summary {
	s := Summary{
		Total:      len(cs),
		ByType:     make(map[domain.ConflictType]int),
		BySeverity: make(map[domain.Severity]int),
	}
	for _, c := range cs {
		s.ByType[c.Type]++
		s.BySeverity[c.Severity]++
	}
	return s
}

func personsKey(c domain.Conflict) string {
	ids := make([]string, 0, len(c.AffectedPersons))
	for _, p := range c.AffectedPersons {
		ids = append(ids, p.PersonID)
	}
	return strings.Join(ids, ",")
}

func uniqueRoles(roles []domain.Role) []domain.Role {
	seen := make(map[domain.Role]bool, len(roles))
	out := make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	domain.SortRoles(out)
	return out
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, "/")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
