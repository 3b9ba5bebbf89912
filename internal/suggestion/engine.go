package suggestion

import (
	"fmt"
	"sort"
	"time"

	"church-roster/internal/domain"
)

// Directory 身份查询（alias.Resolver 实现）
type Directory interface {
	Identities() []domain.PersonIdentity
	Canonical(personID string) string
	DisplayName(personID string) (string, bool)
}

// Availability 可服事与家庭组查询（availability.Store 实现）
type Availability interface {
	BlockingWindow(personID string, date time.Time) (domain.UnavailabilityWindow, bool)
	FamilyOf(personID string) (string, bool)
	FamilyMembers(groupID string) []string
}

// Flags 打分时考虑的因素
type Flags struct {
	ConsiderAvailability bool `json:"consider_availability"`
	ConsiderFamily       bool `json:"consider_family"`
	ConsiderBalance      bool `json:"consider_balance"`
}

// AllFactors 全部因素
func AllFactors() Flags {
	return Flags{ConsiderAvailability: true, ConsiderFamily: true, ConsiderBalance: true}
}

// Request 推荐请求
type Request struct {
	Date  time.Time
	Roles []domain.Role
	Flags Flags
	Limit int // 每个岗位最多返回几人，<= 0 不限
}

// Candidate 候选人
type Candidate struct {
	PersonID    string   `json:"person_id"`
	DisplayName string   `json:"display_name"`
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	Concerns    []string `json:"concerns"`
}

// Engine 排班推荐，纯读
type Engine struct {
	directory    Directory
	availability Availability
	weights      Weights
}

// NewEngine 创建推荐引擎
func NewEngine(directory Directory, availability Availability, weights Weights) *Engine {
	return &Engine{
		directory:    directory,
		availability: availability,
		weights:      weights,
	}
}

// Weights 当前权重
func (e *Engine) Weights() Weights {
	return e.weights
}

// 一次推荐用到的派生数据
type snapshot struct {
	date        time.Time
	past        map[string]*domain.ServiceHistory // date 之前的历史
	around      map[string][]time.Time            // 除 date 当天以外的全部服事日期
	weekly      map[string]bool                   // date 所在服事周有安排的人
	onDate      map[string][]domain.Role          // date 当天已有的岗位
	loads       map[string]int                    // 最近窗口内的服事次数
	averageLoad float64
}

// Suggest 为每个岗位给出排序后的候选人
// 分数 <= 0 或被硬排除（不可服事）的人不会出现在结果里
func (e *Engine) Suggest(req Request, assignments []domain.ServiceAssignment) (map[domain.Role][]Candidate, error) {
	if req.Date.IsZero() {
		return nil, domain.NewValidationError("date is required")
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = domain.AllRoles()
	}
	for _, r := range roles {
		if _, err := domain.ParseRole(string(r)); err != nil {
			return nil, err
		}
	}

	snap := e.buildSnapshot(domain.TruncateDate(req.Date), assignments)
	pool := e.candidatePool(snap)

	out := make(map[domain.Role][]Candidate, len(roles))
	for _, role := range roles {
		ranked := make([]Candidate, 0, len(pool))
		for _, personID := range pool {
			c, excluded := e.score(snap, personID, role, req.Flags)
			if excluded || c.Score <= 0 {
				continue
			}
			ranked = append(ranked, c)
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Score != ranked[j].Score {
				return ranked[i].Score > ranked[j].Score
			}
			return ranked[i].PersonID < ranked[j].PersonID
		})
		if req.Limit > 0 && len(ranked) > req.Limit {
			ranked = ranked[:req.Limit]
		}
		out[role] = ranked
	}
	return out, nil
}

func (e *Engine) score(snap *snapshot, personID string, role domain.Role, flags Flags) (Candidate, bool) {
	w := e.weights
	c := Candidate{
		PersonID:    personID,
		DisplayName: e.displayName(personID),
		Score:       w.Base,
		Reasons:     []string{},
		Concerns:    []string{},
	}
	excluded := false
	reason := func(delta int, format string, args ...any) {
		c.Score += delta
		c.Reasons = append(c.Reasons, fmt.Sprintf(format, args...))
	}
	concern := func(delta int, format string, args ...any) {
		c.Score += delta
		c.Concerns = append(c.Concerns, fmt.Sprintf(format, args...))
	}

	if flags.ConsiderAvailability {
		if win, blocked := e.availability.BlockingWindow(personID, snap.date); blocked {
			concern(w.Unavailable, "unavailable %s", win.Describe())
			excluded = true
		} else {
			reason(w.Available, "available on %s", domain.FormatDate(snap.date))
		}
	}

	if flags.ConsiderFamily {
		if relatives := e.familyServingThisWeek(snap, personID); len(relatives) > 0 {
			concern(w.FamilyConflict, "family member %s is serving this week", relatives[0])
		} else {
			reason(w.NoFamilyConflict, "no family member serving this week")
		}
	}

	if flags.ConsiderBalance {
		load := snap.loads[personID]
		if float64(load) < snap.averageLoad {
			reason(w.BelowAverageLoad, "served %d times in the last %d weeks, below average %.1f", load, w.BalanceWindowWeeks, snap.averageLoad)
		} else if w.HeavyLoadRatio > 0 && snap.averageLoad > 0 && float64(load) > snap.averageLoad*w.HeavyLoadRatio {
			concern(0, "served %d times in the last %d weeks, well above average %.1f", load, w.BalanceWindowWeeks, snap.averageLoad)
		}
	}

	if h, ok := snap.past[personID]; ok {
		if n := h.ByRole[role]; n > 0 {
			reason(w.RoleFit, "served as %s %d times before", role, n)
			if last, ok := h.LastByRole[role]; ok {
				if gap := domain.DaysBetween(last, snap.date); gap > w.RoleGapDays {
					reason(w.RoleGap, "last served as %s %d days ago", role, gap)
				}
			}
		}
	}

	if days, when, ok := nearestService(snap.around[personID], snap.date); ok {
		if delta := w.recentPenalty(days); delta != 0 {
			if when.Before(snap.date) {
				concern(delta, "served %d days ago (%s)", days, domain.FormatDate(when))
			} else {
				concern(delta, "already scheduled %d days later (%s)", days, domain.FormatDate(when))
			}
		}
	}

	if roles := snap.onDate[personID]; len(roles) > 0 {
		concern(0, "already assigned %s on %s", joinRoles(roles), domain.FormatDate(snap.date))
	}

	return c, excluded
}

func (e *Engine) buildSnapshot(date time.Time, assignments []domain.ServiceAssignment) *snapshot {
	snap := &snapshot{
		date:   date,
		around: make(map[string][]time.Time),
		weekly: make(map[string]bool),
		onDate: make(map[string][]domain.Role),
		loads:  make(map[string]int),
	}

	week := domain.WeekOf(date)
	windowStart := date.AddDate(0, 0, -7*e.weights.BalanceWindowWeeks)

	var past []domain.ServiceAssignment
	for _, a := range assignments {
		if a.Vacant() {
			continue
		}
		a.PersonID = e.directory.Canonical(a.PersonID)
		d := domain.TruncateDate(a.ServiceDate)

		if domain.WeekOf(d).Equal(week) {
			snap.weekly[a.PersonID] = true
		}
		if d.Equal(date) {
			snap.onDate[a.PersonID] = append(snap.onDate[a.PersonID], a.Role)
			continue
		}
		snap.around[a.PersonID] = append(snap.around[a.PersonID], d)
		if d.Before(date) {
			past = append(past, a)
			if !d.Before(windowStart) {
				snap.loads[a.PersonID]++
			}
		}
	}
	snap.past = domain.BuildHistory(past)

	if len(snap.loads) > 0 {
		total := 0
		for _, n := range snap.loads {
			total += n
		}
		snap.averageLoad = float64(total) / float64(len(snap.loads))
	}
	return snap
}

// candidatePool 已知身份与历史中出现过的人，按 person_id 排序
func (e *Engine) candidatePool(snap *snapshot) []string {
	seen := make(map[string]bool)
	for _, p := range e.directory.Identities() {
		seen[e.directory.Canonical(p.PersonID)] = true
	}
	for id := range snap.around {
		seen[id] = true
	}
	for id := range snap.onDate {
		seen[id] = true
	}
	pool := make([]string, 0, len(seen))
	for id := range seen {
		pool = append(pool, id)
	}
	sort.Strings(pool)
	return pool
}

func (e *Engine) familyServingThisWeek(snap *snapshot, personID string) []string {
	group, ok := e.availability.FamilyOf(personID)
	if !ok {
		return nil
	}
	var out []string
	for _, m := range e.availability.FamilyMembers(group) {
		if m != personID && snap.weekly[m] {
			out = append(out, e.displayName(m))
		}
	}
	return out
}

func (e *Engine) displayName(personID string) string {
	if name, ok := e.directory.DisplayName(personID); ok {
		return name
	}
	return personID
}

// nearestService 离 date 最近的一次服事（不含当天）
func nearestService(dates []time.Time, date time.Time) (int, time.Time, bool) {
	best := -1
	var when time.Time
	for _, d := range dates {
		days := domain.DaysBetween(d, date)
		if days < 0 {
			days = -days
		}
		if days == 0 {
			continue
		}
		if best < 0 || days < best || (days == best && d.Before(when)) {
			best = days
			when = d
		}
	}
	return best, when, best > 0
}

func joinRoles(roles []domain.Role) string {
	s := ""
	for i, r := range roles {
		if i > 0 {
			s += "/"
		}
		s += string(r)
	}
	return s
}
