package domain

import (
	"fmt"
	"time"
)

// FamilyGroup 家庭组：同一周内不应同时服事
type FamilyGroup struct {
	GroupID string   `json:"group_id"`
	Members []string `json:"members"` // person_id，已排序
}

// UnavailabilityWindow 不可服事时段（含两端）
// End == nil 表示无限期
type UnavailabilityWindow struct {
	PersonID string     `db:"person_id" json:"person_id"`
	Start    time.Time  `db:"unavailable_start" json:"start_date"`
	End      *time.Time `db:"unavailable_end" json:"end_date,omitempty"`
	Reason   string     `db:"unavailable_reason" json:"reason,omitempty"`
	Notes    string     `db:"notes" json:"notes,omitempty"`
}

// Validate 校验 start <= end
func (w UnavailabilityWindow) Validate() error {
	if w.PersonID == "" {
		return NewValidationError("person_id is required")
	}
	if w.Start.IsZero() {
		return NewValidationError("start_date is required")
	}
	if w.End != nil && w.Start.After(*w.End) {
		return NewValidationError("start_date %s is after end_date %s", FormatDate(w.Start), FormatDate(*w.End))
	}
	return nil
}

// Contains 日期是否落在窗口内
func (w UnavailabilityWindow) Contains(d time.Time) bool {
	d = TruncateDate(d)
	if d.Before(w.Start) {
		return false
	}
	return w.End == nil || !d.After(*w.End)
}

// Describe 人类可读的窗口描述
func (w UnavailabilityWindow) Describe() string {
	end := "indefinite"
	if w.End != nil {
		end = FormatDate(*w.End)
	}
	if w.Reason == "" {
		return fmt.Sprintf("%s ~ %s", FormatDate(w.Start), end)
	}
	return fmt.Sprintf("%s ~ %s (%s)", FormatDate(w.Start), end, w.Reason)
}

// MetadataRow 同工资料表的一行
// 一个人有多个不可服事时段时会出现多行；没有时段的行 Start 为空
type MetadataRow struct {
	PersonID          string     `db:"person_id" json:"person_id"`
	PersonName        string     `db:"person_name" json:"person_name"`
	FamilyGroup       string     `db:"family_group" json:"family_group,omitempty"`
	UnavailableStart  *time.Time `db:"unavailable_start" json:"unavailable_start,omitempty"`
	UnavailableEnd    *time.Time `db:"unavailable_end" json:"unavailable_end,omitempty"`
	UnavailableReason string     `db:"unavailable_reason" json:"unavailable_reason,omitempty"`
	Notes             string     `db:"notes" json:"notes,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Window 行上携带的不可服事时段；没有则返回 false
func (r MetadataRow) Window() (UnavailabilityWindow, bool) {
	if r.UnavailableStart == nil {
		return UnavailabilityWindow{}, false
	}
	var end *time.Time
	if r.UnavailableEnd != nil {
		e := TruncateDate(*r.UnavailableEnd)
		end = &e
	}
	return UnavailabilityWindow{
		PersonID: r.PersonID,
		Start:    TruncateDate(*r.UnavailableStart),
		End:      end,
		Reason:   r.UnavailableReason,
		Notes:    r.Notes,
	}, true
}
