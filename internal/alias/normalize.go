package alias

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"church-roster/internal/domain"
)

// 一个单元格里写了多个人时使用的分隔符
var nameSeparators = []string{"/", "／", "、", ",", "，", "&", "＆", ";", "；", "\n", "|"}

// Normalize 生成用于比较的名字 key：去掉所有空白（含全角空格）、全角转半角、小写
// 只用于相等比较，不用于展示
func Normalize(name string) string {
	folded := width.Fold.String(name)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || r == '\u200b' || r == '\ufeff' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SplitNames 拆分一个单元格里的多个名字，去掉空白项
func SplitNames(cell string) []string {
	parts := []string{cell}
	for _, sep := range nameSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Counter 原始名字 -> 出现次数
type Counter map[string]int

// Names 按字典序返回所有名字
func (c Counter) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ExtractNames 统计一批记录在指定岗位列中出现的名字
// roles 为空时统计全部岗位
func ExtractNames(records []domain.RawRecord, roles []domain.Role) Counter {
	if len(roles) == 0 {
		roles = domain.AllRoles()
	}
	counter := make(Counter)
	for _, rec := range records {
		for _, role := range roles {
			cell, ok := rec.Names[role]
			if !ok {
				continue
			}
			for _, name := range SplitNames(cell) {
				if Normalize(name) == "" {
					continue
				}
				counter[name]++
			}
		}
	}
	return counter
}
