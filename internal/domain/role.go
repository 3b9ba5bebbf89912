package domain

import (
	"sort"
	"strings"
)

// Role 服事岗位
// 源表里每个岗位是一列，这里用枚举代替字符串列名，避免拼写错误
type Role string

const (
	RolePreacher Role = "preacher" // 讲道
	RoleLead     Role = "lead"     // 敬拜带领
	RoleTeam     Role = "team"     // 敬拜同工
	RolePianist  Role = "pianist"  // 司琴
	RoleAudio    Role = "audio"    // 音控
	RoleVideo    Role = "video"    // 导播/直播
	RoleSlides   Role = "slides"   // 投影
	RoleReader   Role = "reader"   // 读经
)

var allRoles = []Role{
	RolePreacher,
	RoleLead,
	RoleTeam,
	RolePianist,
	RoleAudio,
	RoleVideo,
	RoleSlides,
	RoleReader,
}

// 表头别名 -> 岗位（表格里经常是中文列名）
var roleHeaders = map[string]Role{
	"preacher": RolePreacher, "讲道": RolePreacher, "讲员": RolePreacher,
	"lead": RoleLead, "worship_lead": RoleLead, "敬拜带领": RoleLead, "领会": RoleLead,
	"team": RoleTeam, "worship_team": RoleTeam, "敬拜同工": RoleTeam, "敬拜团队": RoleTeam,
	"pianist": RolePianist, "司琴": RolePianist,
	"audio": RoleAudio, "音控": RoleAudio,
	"video": RoleVideo, "导播": RoleVideo, "直播": RoleVideo,
	"slides": RoleSlides, "投影": RoleSlides,
	"reader": RoleReader, "读经": RoleReader,
}

// AllRoles 所有已知岗位（固定顺序）
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole 解析岗位名称或表头，未知岗位返回 ValidationError
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := roleHeaders[key]; ok {
		return r, nil
	}
	return "", NewValidationError("unknown role: %q", s)
}

// ParseRoles 解析岗位列表；空列表返回全部岗位
func ParseRoles(items []string) ([]Role, error) {
	seen := make(map[Role]bool)
	var roles []Role
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		r, err := ParseRole(item)
		if err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return AllRoles(), nil
	}
	return roles, nil
}

// SortRoles 按固定岗位顺序排序
func SortRoles(roles []Role) {
	rank := make(map[Role]int, len(allRoles))
	for i, r := range allRoles {
		rank[r] = i
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return rank[roles[i]] < rank[roles[j]]
	})
}
