package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 统一的日期格式
const DateLayout = "2006-01-02"

// IndefiniteSentinel 表格中"无限期不可服事"的约定写法
// 只用于读写表格，内部一律用 End == nil 表示
const IndefiniteSentinel = "2099-12-31"

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"01-02-06", // excelize 对日期单元格的默认格式化
}

// ParseDate 解析日期，返回 UTC 零点
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, NewValidationError("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError("malformed date: %q", s)
}

// MustDate 测试和常量初始化用
func MustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatDate 格式化日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// TruncateDate 去掉时分秒
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekOf 返回 service_date 所属服事周的主日（当天或之前最近的星期日）
func WeekOf(d time.Time) time.Time {
	d = TruncateDate(d)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// DaysBetween 两个日期相差的天数（b - a）
func DaysBetween(a, b time.Time) int {
	return int(TruncateDate(b).Sub(TruncateDate(a)).Hours() / 24)
}

// ParseWindowEnd 解析不可服事结束日期；空值或哨兵日期表示无限期
func ParseWindowEnd(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == IndefiniteSentinel {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	if FormatDate(t) == IndefiniteSentinel {
		return nil, nil
	}
	return &t, nil
}

// FormatWindowEnd 写回表格时把无限期还原成哨兵日期
func FormatWindowEnd(end *time.Time) string {
	if end == nil {
		return IndefiniteSentinel
	}
	return FormatDate(*end)
}

// Period 闭区间 [Start, End]
type Period struct {
	Start time.Time
	End   time.Time
	Label string
}

// ParsePeriod 支持 "2025-11"、"2025"、"2025-11-01..2025-12-31"
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, NewValidationError("period is required")
	}

	if from, to, ok := strings.Cut(s, ".."); ok {
		start, err := ParseDate(from)
		if err != nil {
			return Period{}, err
		}
		end, err := ParseDate(to)
		if err != nil {
			return Period{}, err
		}
		if start.After(end) {
			return Period{}, NewValidationError("period start %s is after end %s", FormatDate(start), FormatDate(end))
		}
		return Period{Start: start, End: end, Label: s}, nil
	}

	if t, err := time.Parse("2006-01", s); err == nil {
		return Period{Start: t, End: t.AddDate(0, 1, -1), Label: s}, nil
	}
	if t, err := time.Parse("2006", s); err == nil {
		return Period{Start: t, End: t.AddDate(1, 0, -1), Label: s}, nil
	}
	return Period{}, NewValidationError("malformed period: %q", s)
}

// Contains 日期是否在区间内（含两端）
func (p Period) Contains(d time.Time) bool {
	d = TruncateDate(d)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	if p.Label != "" {
		return p.Label
	}
	return fmt.Sprintf("%s..%s", FormatDate(p.Start), FormatDate(p.End))
}
