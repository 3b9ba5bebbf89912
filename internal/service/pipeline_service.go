package service

import (
	"context"
	"fmt"
	"time"

	"church-roster/internal/changegate"
	"church-roster/internal/conflict"
	"church-roster/internal/domain"
	"church-roster/internal/notify"
	"church-roster/internal/sheet"
	"church-roster/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source 原始排班工作簿来源
type Source interface {
	Load(ctx context.Context) (*sheet.Workbook, error)
	Name() string
}

// FetcherSource 远程共享表格
type FetcherSource struct {
	Fetcher *sheet.Fetcher
	URL     string
}

func (s FetcherSource) Load(ctx context.Context) (*sheet.Workbook, error) {
	return s.Fetcher.FetchWorkbook(ctx)
}

func (s FetcherSource) Name() string { return s.URL }

// FileSource 本地 xlsx 文件
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (*sheet.Workbook, error) {
	return sheet.Open(s.Path)
}

func (s FileSource) Name() string { return s.Path }

// PipelineResult 一次流水线运行的结果
type PipelineResult struct {
	Decision   changegate.Decision `json:"decision"`
	Hash       string              `json:"hash"`
	RowCount   int                 `json:"row_count"`
	Imported   *ImportResponse     `json:"imported,omitempty"`
	Clean      *CleanResponse      `json:"clean,omitempty"`
	Conflicts  *conflict.Summary   `json:"conflicts,omitempty"`
	Checkpoint *domain.Checkpoint  `json:"checkpoint,omitempty"`
}

// PipelineService 清洗流水线：读取原始表格 -> 变更判断 -> 清洗 -> 检查点 -> 通知
type PipelineService struct {
	source      Source
	roster      *RosterService
	checkpoints *store.CheckpointStore
	notifier    notify.Notifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewPipelineService 创建流水线；notifier 可为 nil
func NewPipelineService(source Source, roster *RosterService, checkpoints *store.CheckpointStore, notifier notify.Notifier, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		source:      source,
		roster:      roster,
		checkpoints: checkpoints,
		notifier:    notifier,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run 执行一次流水线；force 为 true 时忽略变更判断
func (p *PipelineService) Run(ctx context.Context, force bool) (*PipelineResult, error) {
	start := time.Now()
	defer func() {
		pipelineDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := p.run(ctx, force)
	if err != nil {
		pipelineRunsTotal.WithLabelValues("error").Inc()
		p.logger.Error("Pipeline run failed", zap.String("source", p.source.Name()), zap.Error(err))
		return nil, err
	}
	if res.Decision.Run {
		pipelineRunsTotal.WithLabelValues("run").Inc()
	} else {
		pipelineRunsTotal.WithLabelValues("skip").Inc()
	}
	return res, nil
}

func (p *PipelineService) run(ctx context.Context, force bool) (*PipelineResult, error) {
	wb, res, err := p.evaluate(ctx, force)
	if err != nil {
		return nil, err
	}
	if !res.Decision.Run {
		p.logger.Info("Pipeline skipped",
			zap.String("source", p.source.Name()),
			zap.String("reason", res.Decision.Reason),
			zap.Int("row_count", res.RowCount),
		)
		return res, nil
	}

	p.logger.Info("Pipeline running",
		zap.String("source", p.source.Name()),
		zap.String("reason", res.Decision.Reason),
		zap.Int("row_count", res.RowCount),
	)

	// 先导入附表，清洗和冲突检查才能用到表里的别名、家庭组和不可服事时段
	res.Imported, err = p.roster.ImportTables(ctx, wb.Aliases, wb.Redirects, wb.Volunteers)
	if err != nil {
		return nil, err
	}

	res.Clean, err = p.roster.Clean(ctx, wb.Records)
	if err != nil {
		return nil, err
	}

	if span, ok := recordSpan(wb.Records); ok {
		check, err := p.roster.CheckConflicts(ctx, CheckRequest{
			Period: fmt.Sprintf("%s..%s", domain.FormatDate(span.Start), domain.FormatDate(span.End)),
			Flags:  conflict.AllChecks(),
		})
		if err != nil {
			return nil, err
		}
		res.Conflicts = &check.Summary
	}

	cp := domain.Checkpoint{
		Hash:      res.Hash,
		RowCount:  res.RowCount,
		Timestamp: p.now(),
		RunID:     uuid.NewString(),
	}
	if err := p.checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}
	res.Checkpoint = &cp

	p.publish(ctx, res)
	return res, nil
}

// Preview 只做变更判断，不清洗也不写检查点
func (p *PipelineService) Preview(ctx context.Context, force bool) (*PipelineResult, error) {
	_, res, err := p.evaluate(ctx, force)
	return res, err
}

func (p *PipelineService) evaluate(ctx context.Context, force bool) (*sheet.Workbook, *PipelineResult, error) {
	wb, err := p.source.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster from %s: %w", p.source.Name(), err)
	}

	rows := make([]changegate.Row, 0, len(wb.RawRows))
	for _, r := range wb.RawRows {
		rows = append(rows, changegate.Row(r))
	}
	res := &PipelineResult{
		Hash:     changegate.Fingerprint(rows),
		RowCount: len(rows),
	}

	last, err := p.checkpoints.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	res.Decision = changegate.ShouldRun(res.Hash, res.RowCount, force, last)
	return wb, res, nil
}

// publish 通知失败只记日志，不影响本次运行结果
func (p *PipelineService) publish(ctx context.Context, res *PipelineResult) {
	if p.notifier == nil {
		return
	}
	evt := notify.NewEvent(notify.EventPipelineRun)
	evt.RunID = res.Checkpoint.RunID
	evt.Ran = res.Decision.Run
	evt.Reason = res.Decision.Reason
	evt.RowCount = res.RowCount
	evt.Hash = res.Hash
	if res.Clean != nil {
		evt.AddedAliases = len(res.Clean.Added)
	}
	if res.Conflicts != nil {
		evt.ConflictCount = res.Conflicts.Total
		evt.ErrorCount = res.Conflicts.BySeverity[domain.SeverityError]
	}

	if err := p.notifier.Notify(ctx, evt); err != nil {
		p.logger.Warn("Failed to send pipeline notification",
			zap.String("run_id", evt.RunID),
			zap.Error(err),
		)
	}
}

// Checkpoints 检查点历史（最新的在前）
func (p *PipelineService) Checkpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	return p.checkpoints.History(ctx)
}

// StartPolling 按固定间隔运行流水线，直到 ctx 结束；启动时先运行一次
func (p *PipelineService) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Starting pipeline polling",
		zap.String("source", p.source.Name()),
		zap.Duration("interval", interval),
	)

	// 出错已在 Run 里记日志和指标，轮询继续
	_, _ = p.Run(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Run(ctx, false)
		}
	}
}
