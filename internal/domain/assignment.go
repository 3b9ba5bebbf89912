package domain

import (
	"sort"
	"time"
)

// RawRecord 原始排班表的一行：某个主日各岗位填写的名字（未清洗）
type RawRecord struct {
	ServiceDate time.Time
	Names       map[Role]string
}

// ServiceAssignment 清洗后的岗位安排；PersonID 为空表示空缺
type ServiceAssignment struct {
	ServiceDate time.Time `db:"service_date" json:"service_date"`
	Role        Role      `db:"role" json:"role"`
	PersonID    string    `db:"person_id" json:"person_id,omitempty"`
	RawName     string    `db:"raw_name" json:"raw_name,omitempty"`
}

// Vacant 是否空缺
func (a ServiceAssignment) Vacant() bool {
	return a.PersonID == ""
}

// Week 所属服事周
func (a ServiceAssignment) Week() time.Time {
	return WeekOf(a.ServiceDate)
}

// ServiceWeek 一个服事周内的全部安排
type ServiceWeek struct {
	Week        time.Time
	Assignments []ServiceAssignment
}

// GroupByWeek 按服事周分桶，周升序；周内按日期、岗位、person_id 排序
func GroupByWeek(assignments []ServiceAssignment) []ServiceWeek {
	buckets := make(map[time.Time][]ServiceAssignment)
	for _, a := range assignments {
		w := a.Week()
		buckets[w] = append(buckets[w], a)
	}

	weeks := make([]ServiceWeek, 0, len(buckets))
	for w, items := range buckets {
		SortAssignments(items)
		weeks = append(weeks, ServiceWeek{Week: w, Assignments: items})
	}
	sort.Slice(weeks, func(i, j int) bool {
		return weeks[i].Week.Before(weeks[j].Week)
	})
	return weeks
}

// SortAssignments 稳定排序：日期、岗位、person_id
func SortAssignments(items []ServiceAssignment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ServiceDate.Equal(b.ServiceDate) {
			return a.ServiceDate.Before(b.ServiceDate)
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.PersonID < b.PersonID
	})
}

// ServiceHistory 某人的服事历史（派生数据，随用随算）
type ServiceHistory struct {
	PersonID   string
	Total      int
	ByRole     map[Role]int
	Dates      []time.Time
	LastServed time.Time
	LastByRole map[Role]time.Time
}

// CountBetween 区间 [from, to] 内的服事次数
func (h *ServiceHistory) CountBetween(from, to time.Time) int {
	n := 0
	for _, d := range h.Dates {
		if !d.Before(from) && !d.After(to) {
			n++
		}
	}
	return n
}

// BuildHistory 从安排集合计算每个人的服事历史，跳过空缺
func BuildHistory(assignments []ServiceAssignment) map[string]*ServiceHistory {
	out := make(map[string]*ServiceHistory)
	for _, a := range assignments {
		if a.Vacant() {
			continue
		}
		h, ok := out[a.PersonID]
		if !ok {
			h = &ServiceHistory{
				PersonID:   a.PersonID,
				ByRole:     make(map[Role]int),
				LastByRole: make(map[Role]time.Time),
			}
			out[a.PersonID] = h
		}
		d := TruncateDate(a.ServiceDate)
		h.Total++
		h.ByRole[a.Role]++
		h.Dates = append(h.Dates, d)
		if d.After(h.LastServed) {
			h.LastServed = d
		}
		if d.After(h.LastByRole[a.Role]) {
			h.LastByRole[a.Role] = d
		}
	}
	for _, h := range out {
		sort.Slice(h.Dates, func(i, j int) bool { return h.Dates[i].Before(h.Dates[j]) })
	}
	return out
}
