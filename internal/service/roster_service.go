package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"church-roster/internal/alias"
	"church-roster/internal/availability"
	"church-roster/internal/conflict"
	"church-roster/internal/domain"
	"church-roster/internal/repository"
	"church-roster/internal/sheet"
	"church-roster/internal/suggestion"

	"go.uber.org/zap"
)

// RosterService 排班核心服务
// 每次调用都从仓库重新加载别名表和资料表，写操作用 mu 串行化 load-modify-save
type RosterService struct {
	mu                sync.Mutex
	aliasRepo         repository.AliasRepository
	volunteerRepo     repository.VolunteerRepository
	assignmentRepo    repository.AssignmentRepository
	weights           suggestion.Weights
	overloadThreshold int
	logger            *zap.Logger
}

// NewRosterService 创建排班服务
func NewRosterService(
	aliasRepo repository.AliasRepository,
	volunteerRepo repository.VolunteerRepository,
	assignmentRepo repository.AssignmentRepository,
	weights suggestion.Weights,
	overloadThreshold int,
	logger *zap.Logger,
) *RosterService {
	return &RosterService{
		aliasRepo:         aliasRepo,
		volunteerRepo:     volunteerRepo,
		assignmentRepo:    assignmentRepo,
		weights:           weights,
		overloadThreshold: overloadThreshold,
		logger:            logger,
	}
}

// CleanResponse 清洗结果
type CleanResponse struct {
	alias.SyncResult
	RecordCount     int `json:"record_count"`
	AssignmentCount int `json:"assignment_count"`
	VacancyCount    int `json:"vacancy_count"`
}

// Clean 同步名字到别名表，并把原始记录解析为岗位安排后整体替换
func (s *RosterService) Clean(ctx context.Context, records []domain.RawRecord) (*CleanResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolver, err := s.loadResolver(ctx)
	if err != nil {
		return nil, err
	}

	res := resolver.Sync(alias.ExtractNames(records, domain.AllRoles()))
	if err := s.aliasRepo.SaveAliases(ctx, resolver.Rows()); err != nil {
		return nil, fmt.Errorf("failed to save aliases: %w", err)
	}

	assignments := resolver.Assign(records)
	if err := s.assignmentRepo.ReplaceAssignments(ctx, assignments); err != nil {
		return nil, fmt.Errorf("failed to replace assignments: %w", err)
	}
	aliasesAddedTotal.Add(float64(len(res.Added)))

	resp := &CleanResponse{
		SyncResult:  res,
		RecordCount: len(records),
	}
	for _, a := range assignments {
		if a.Vacant() {
			resp.VacancyCount++
		} else {
			resp.AssignmentCount++
		}
	}

	s.logger.Info("Roster cleaned",
		zap.Int("records", resp.RecordCount),
		zap.Int("added_aliases", len(res.Added)),
		zap.Int("updated_counts", len(res.UpdatedCounts)),
		zap.Int("assignments", resp.AssignmentCount),
		zap.Int("vacancies", resp.VacancyCount),
	)
	return resp, nil
}

// MergeRequest 合并身份请求
type MergeRequest struct {
	SourceID        string `json:"source_id"`
	TargetID        string `json:"target_id"`
	KeepDisplayName string `json:"keep_display_name"`
}

// MergeResponse 合并身份响应
type MergeResponse struct {
	alias.MergeResult
	ReassignedAssignments int `json:"reassigned_assignments"`
	ReassignedMetadata    int `json:"reassigned_metadata"`
}

// Merge 把 source 的别名、已有安排和资料行并入 target
func (s *RosterService) Merge(ctx context.Context, req MergeRequest) (*MergeResponse, error) {
	if strings.TrimSpace(req.SourceID) == "" || strings.TrimSpace(req.TargetID) == "" {
		return nil, domain.NewValidationError("source_id and target_id are required")
	}
	keep, err := alias.ParseKeep(req.KeepDisplayName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolver, err := s.loadResolver(ctx)
	if err != nil {
		return nil, err
	}
	res, err := resolver.Merge(req.SourceID, req.TargetID, keep)
	if err != nil {
		return nil, err
	}
	resp := &MergeResponse{MergeResult: res}
	if res.MergedAliasCount == 0 {
		// 解析后是同一个人（已经合并过）
		return resp, nil
	}

	if err := s.aliasRepo.SaveAliases(ctx, resolver.Rows()); err != nil {
		return nil, fmt.Errorf("failed to save aliases: %w", err)
	}
	if err := s.aliasRepo.SaveRedirects(ctx, resolver.Redirects()); err != nil {
		return nil, fmt.Errorf("failed to save merge redirects: %w", err)
	}
	n, err := s.assignmentRepo.ReassignPerson(ctx, res.SourceID, res.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign assignments: %w", err)
	}
	resp.ReassignedAssignments = n
	// 资料行也改挂到 target，否则之后按 target 修改家庭组时旧行仍生效
	m, err := s.volunteerRepo.ReassignPerson(ctx, res.SourceID, res.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign volunteer metadata: %w", err)
	}
	resp.ReassignedMetadata = m
	mergesTotal.Inc()

	s.logger.Info("Identities merged",
		zap.String("source_id", res.SourceID),
		zap.String("target_id", res.TargetID),
		zap.Int("merged_aliases", res.MergedAliasCount),
		zap.Int("reassigned_assignments", n),
		zap.Int("reassigned_metadata", m),
		zap.String("display_name", res.FinalDisplayName),
	)
	return resp, nil
}

// CheckRequest 冲突检查请求
type CheckRequest struct {
	Period string
	Flags  conflict.Flags
}

// CheckConflicts 检查周期内的排班冲突
func (s *RosterService) CheckConflicts(ctx context.Context, req CheckRequest) (*conflict.Result, error) {
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	resolver, store, err := s.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignmentRepo.ListAssignments(ctx, repository.AssignmentFilter{Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	res := conflict.NewDetector(resolver, store, s.overloadThreshold).Check(period, assignments, req.Flags)
	recordConflicts(res)

	s.logger.Debug("Conflict check finished",
		zap.String("period", period.String()),
		zap.Int("assignments", len(assignments)),
		zap.Int("conflicts", res.Summary.Total),
	)
	return &res, nil
}

// ExportConflicts 冲突检查结果导出为 xlsx
func (s *RosterService) ExportConflicts(ctx context.Context, req CheckRequest) ([]byte, error) {
	res, err := s.CheckConflicts(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := sheet.ExportConflicts(*res)
	if err != nil {
		return nil, fmt.Errorf("failed to export conflicts: %w", err)
	}
	return data, nil
}

// SuggestRequest 推荐请求
type SuggestRequest struct {
	Date  string
	Roles []string
	Flags suggestion.Flags
	Limit int
}

// SuggestResponse 推荐结果
type SuggestResponse struct {
	Date        string                                 `json:"date"`
	Suggestions map[domain.Role][]suggestion.Candidate `json:"suggestions"`
}

// Suggest 为某个主日的各岗位推荐人选
func (s *RosterService) Suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	resp, err := s.suggest(ctx, req)
	switch {
	case err == nil:
		suggestionRequestsTotal.WithLabelValues("ok").Inc()
	case domain.IsKind(err, domain.KindValidation):
		suggestionRequestsTotal.WithLabelValues("invalid").Inc()
	default:
		suggestionRequestsTotal.WithLabelValues("error").Inc()
	}
	return resp, err
}

func (s *RosterService) suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	roles, err := domain.ParseRoles(req.Roles)
	if err != nil {
		return nil, err
	}
	resolver, store, err := s.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	// 打分要看完整历史和当天之后的安排
	assignments, err := s.assignmentRepo.ListAssignments(ctx, repository.AssignmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	engine := suggestion.NewEngine(resolver, store, s.weights)
	out, err := engine.Suggest(suggestion.Request{
		Date:  date,
		Roles: roles,
		Flags: req.Flags,
		Limit: req.Limit,
	}, assignments)
	if err != nil {
		return nil, err
	}
	return &SuggestResponse{Date: domain.FormatDate(date), Suggestions: out}, nil
}

// AvailabilityResponse 可服事查询结果
type AvailabilityResponse struct {
	PersonID  string                       `json:"person_id"`
	Date      string                       `json:"date"`
	Available bool                         `json:"available"`
	Window    *domain.UnavailabilityWindow `json:"window,omitempty"`
}

// IsAvailable 查询某人某天是否可服事；没有资料的人视为可服事
func (s *RosterService) IsAvailable(ctx context.Context, personID, date string) (*AvailabilityResponse, error) {
	if strings.TrimSpace(personID) == "" {
		return nil, domain.NewValidationError("person_id is required")
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return nil, err
	}
	resolver, store, err := s.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}

	id := resolver.Canonical(personID)
	resp := &AvailabilityResponse{PersonID: id, Date: domain.FormatDate(d), Available: true}
	if w, blocked := store.BlockingWindow(id, d); blocked {
		resp.Available = false
		resp.Window = &w
	}
	return resp, nil
}

// AddUnavailabilityRequest 登记不可服事时段
// EndDate 为空或 2099-12-31 表示无限期
type AddUnavailabilityRequest struct {
	PersonID  string `json:"person_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

// AddUnavailability 追加不可服事时段
func (s *RosterService) AddUnavailability(ctx context.Context, req AddUnavailabilityRequest) (*domain.UnavailabilityWindow, error) {
	if strings.TrimSpace(req.PersonID) == "" {
		return nil, domain.NewValidationError("person_id is required")
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseWindowEnd(req.EndDate)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolver, store, err := s.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if !resolver.Known(req.PersonID) {
		return nil, domain.NewNotFoundError("unknown person_id: %s", req.PersonID)
	}

	w := domain.UnavailabilityWindow{
		PersonID: resolver.Canonical(req.PersonID),
		Start:    start,
		End:      end,
		Reason:   strings.TrimSpace(req.Reason),
		Notes:    strings.TrimSpace(req.Notes),
	}
	if err := store.AddWindow(w); err != nil {
		return nil, err
	}

	name, ok := store.PersonName(w.PersonID)
	if !ok {
		name, _ = resolver.DisplayName(w.PersonID)
	}
	if err := s.volunteerRepo.AddUnavailability(ctx, name, w); err != nil {
		return nil, fmt.Errorf("failed to save unavailability: %w", err)
	}

	s.logger.Info("Unavailability added",
		zap.String("person_id", w.PersonID),
		zap.String("window", w.Describe()),
	)
	return &w, nil
}

// SetFamilyRequest 设置家庭组；GroupID 为空表示移出家庭组
type SetFamilyRequest struct {
	PersonID string `json:"person_id"`
	GroupID  string `json:"group_id"`
}

// SetFamilyGroup 设置某人的家庭组，返回该组当前成员
func (s *RosterService) SetFamilyGroup(ctx context.Context, req SetFamilyRequest) (*domain.FamilyGroup, error) {
	if strings.TrimSpace(req.PersonID) == "" {
		return nil, domain.NewValidationError("person_id is required")
	}
	groupID := strings.TrimSpace(req.GroupID)

	s.mu.Lock()
	defer s.mu.Unlock()

	resolver, store, err := s.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if !resolver.Known(req.PersonID) {
		return nil, domain.NewNotFoundError("unknown person_id: %s", req.PersonID)
	}
	personID := resolver.Canonical(req.PersonID)

	if err := store.SetFamily(personID, groupID); err != nil {
		return nil, err
	}
	if err := s.volunteerRepo.SetFamilyGroup(ctx, personID, groupID); err != nil {
		return nil, fmt.Errorf("failed to save family group: %w", err)
	}

	group := &domain.FamilyGroup{GroupID: groupID, Members: []string{}}
	if groupID != "" {
		group.Members = store.FamilyMembers(groupID)
		if len(group.Members) < 2 {
			s.logger.Warn("Family group has a single member", zap.String("group_id", groupID))
		}
	}
	return group, nil
}

// ListIdentities 所有同工身份
func (s *RosterService) ListIdentities(ctx context.Context) ([]domain.PersonIdentity, error) {
	resolver, err := s.loadResolver(ctx)
	if err != nil {
		return nil, err
	}
	return resolver.Identities(), nil
}

// Tables 当前别名表、合并记录和同工资料表，用于写回工作簿
func (s *RosterService) Tables(ctx context.Context) ([]domain.AliasRow, []domain.MergeRedirect, []domain.MetadataRow, error) {
	rows, err := s.aliasRepo.ListAliases(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	redirects, err := s.aliasRepo.ListRedirects(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list merge redirects: %w", err)
	}
	metadata, err := s.volunteerRepo.ListMetadata(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list volunteer metadata: %w", err)
	}
	return rows, redirects, metadata, nil
}

// ImportResponse 工作簿附表导入结果
type ImportResponse struct {
	AddedAliases   int `json:"added_aliases"`
	AddedRedirects int `json:"added_redirects"`
	Volunteers     int `json:"volunteers"`
}

// ImportTables 导入工作簿的 aliases / volunteers 表
// 别名和合并记录并入当前数据，已有的 key 以当前数据为准（可能经过合并或人工修改）；
// 同工资料表非空时整体替换
func (s *RosterService) ImportTables(ctx context.Context, aliases []domain.AliasRow, redirects []domain.MergeRedirect, volunteers []domain.MetadataRow) (*ImportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &ImportResponse{}
	if len(aliases) > 0 || len(redirects) > 0 {
		rows, err := s.aliasRepo.ListAliases(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list aliases: %w", err)
		}
		current, err := s.aliasRepo.ListRedirects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list merge redirects: %w", err)
		}

		keys := make(map[string]bool, len(rows))
		for _, r := range rows {
			keys[alias.Normalize(r.Alias)] = true
		}
		for _, r := range aliases {
			key := alias.Normalize(r.Alias)
			if key == "" || keys[key] {
				continue
			}
			keys[key] = true
			rows = append(rows, r)
			resp.AddedAliases++
		}

		sources := make(map[string]bool, len(current))
		for _, m := range current {
			sources[m.SourceID] = true
		}
		for _, m := range redirects {
			if sources[m.SourceID] {
				continue
			}
			sources[m.SourceID] = true
			current = append(current, m)
			resp.AddedRedirects++
		}

		if resp.AddedAliases > 0 || resp.AddedRedirects > 0 {
			resolver, err := alias.NewResolver(rows, current)
			if err != nil {
				return nil, err
			}
			if err := s.aliasRepo.SaveAliases(ctx, resolver.Rows()); err != nil {
				return nil, fmt.Errorf("failed to save aliases: %w", err)
			}
			if err := s.aliasRepo.SaveRedirects(ctx, resolver.Redirects()); err != nil {
				return nil, fmt.Errorf("failed to save merge redirects: %w", err)
			}
		}
	}

	if len(volunteers) > 0 {
		if err := s.volunteerRepo.ReplaceMetadata(ctx, volunteers); err != nil {
			return nil, fmt.Errorf("failed to replace volunteer metadata: %w", err)
		}
		resp.Volunteers = len(volunteers)
	}

	s.logger.Info("Workbook tables imported",
		zap.Int("added_aliases", resp.AddedAliases),
		zap.Int("added_redirects", resp.AddedRedirects),
		zap.Int("volunteers", resp.Volunteers),
	)
	return resp, nil
}

func (s *RosterService) loadResolver(ctx context.Context) (*alias.Resolver, error) {
	rows, err := s.aliasRepo.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	redirects, err := s.aliasRepo.ListRedirects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge redirects: %w", err)
	}
	return alias.NewResolver(rows, redirects)
}

func (s *RosterService) loadDirectory(ctx context.Context) (*alias.Resolver, *availability.Store, error) {
	resolver, err := s.loadResolver(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.volunteerRepo.ListMetadata(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list volunteer metadata: %w", err)
	}
	store := availability.NewStore(rows, resolver.Canonical)
	if issues := store.Issues(); len(issues) > 0 {
		s.logger.Debug("Volunteer metadata has issues", zap.Int("count", len(issues)))
	}
	return resolver, store, nil
}

// recordSpan 记录覆盖的日期范围
func recordSpan(records []domain.RawRecord) (domain.Period, bool) {
	var first, last time.Time
	for _, r := range records {
		d := domain.TruncateDate(r.ServiceDate)
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	if first.IsZero() {
		return domain.Period{}, false
	}
	return domain.Period{Start: first, End: last}, true
}
