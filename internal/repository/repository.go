package repository

import (
	"context"

	"church-roster/internal/domain"
)

// AliasRepository 别名表与合并记录
// 别名表由 Resolver 整体导出后覆盖写回
type AliasRepository interface {
	ListAliases(ctx context.Context) ([]domain.AliasRow, error)
	SaveAliases(ctx context.Context, rows []domain.AliasRow) error

	ListRedirects(ctx context.Context) ([]domain.MergeRedirect, error)
	SaveRedirects(ctx context.Context, redirects []domain.MergeRedirect) error
}

// VolunteerRepository 同工资料表（家庭组、不可服事时段）
type VolunteerRepository interface {
	ListMetadata(ctx context.Context) ([]domain.MetadataRow, error)

	// AddUnavailability 追加一行不可服事时段
	AddUnavailability(ctx context.Context, personName string, w domain.UnavailabilityWindow) error

	// SetFamilyGroup 修改某人的家庭组；groupID 为空表示移出家庭组
	SetFamilyGroup(ctx context.Context, personID, groupID string) error

	// ReassignPerson 合并身份后把 fromID 的资料行改挂到 toID，返回受影响行数
	ReassignPerson(ctx context.Context, fromID, toID string) (int, error)

	// ReplaceMetadata 用工作簿 volunteers 表整体替换资料行
	ReplaceMetadata(ctx context.Context, rows []domain.MetadataRow) error
}

// AssignmentFilter 安排查询条件，零值表示不过滤
type AssignmentFilter struct {
	Period *domain.Period
	Roles  []domain.Role
}

// AssignmentRepository 清洗后的岗位安排
type AssignmentRepository interface {
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]domain.ServiceAssignment, error)

	// ReplaceAssignments 整体替换（清洗流水线每次全量重算）
	ReplaceAssignments(ctx context.Context, items []domain.ServiceAssignment) error

	// ReassignPerson 把 fromID 的安排改挂到 toID，返回受影响行数
	ReassignPerson(ctx context.Context, fromID, toID string) (int, error)
}
