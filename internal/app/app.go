package app

import (
	"context"
	"database/sql"
	"fmt"

	"church-roster/common/database"
	"church-roster/common/mqtt"
	commonredis "church-roster/common/redis"
	"church-roster/internal/alias"
	"church-roster/internal/config"
	"church-roster/internal/domain"
	"church-roster/internal/notify"
	"church-roster/internal/repository"
	"church-roster/internal/service"
	"church-roster/internal/sheet"
	"church-roster/internal/store"
	"church-roster/internal/suggestion"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// App roster-data 与 rosterctl 共用的组件装配
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sql.DB
	Redis *redis.Client
	MQTT  *mqtt.Client

	Aliases     repository.AliasRepository
	Volunteers  repository.VolunteerRepository
	Assignments repository.AssignmentRepository
	KV          store.KV

	Roster   *service.RosterService
	Pipeline *service.PipelineService // 没有配置数据源时为 nil
}

// Options 装配选项
type Options struct {
	// Seed 内存模式下用来初始化仓库的工作簿（rosterctl 本地模式）
	Seed *sheet.Workbook
	// KV 覆盖默认的检查点存储
	KV store.KV
	// Source 覆盖配置里的数据源
	Source service.Source
}

// New 按配置装配；DB / Redis 连接失败时退回内存实现，和 DB_ENABLED=false 一样可用
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	weights, err := suggestion.LoadWeights(cfg.Roster.WeightsFile)
	if err != nil {
		return nil, fmt.Errorf("load suggestion weights: %w", err)
	}

	if err := a.openRepositories(ctx, opts.Seed); err != nil {
		a.Close()
		return nil, err
	}
	a.openRedis(ctx)
	a.openMQTT()

	a.KV = opts.KV
	if a.KV == nil {
		if a.Redis != nil {
			a.KV = store.NewRedisKV(a.Redis)
		} else {
			a.KV = store.NewMemoryKV()
		}
	}

	a.Roster = service.NewRosterService(a.Aliases, a.Volunteers, a.Assignments, weights, cfg.Roster.OverloadThreshold, logger)

	source := opts.Source
	if source == nil {
		source = SourceFromConfig(cfg, logger)
	}
	if source != nil {
		checkpoints := store.NewCheckpointStore(a.KV, cfg.Roster.CheckpointHistoryTTL)
		a.Pipeline = service.NewPipelineService(source, a.Roster, checkpoints, a.notifier(), logger)
	}
	return a, nil
}

// SourceFromConfig 远程地址优先于本地工作簿；都没有返回 nil
func SourceFromConfig(cfg *config.Config, logger *zap.Logger) service.Source {
	switch {
	case cfg.Roster.SourceURL != "":
		return service.FetcherSource{
			Fetcher: sheet.NewFetcher(cfg.Roster.SourceURL, cfg.Roster.FetchTimeout, logger),
			URL:     cfg.Roster.SourceURL,
		}
	case cfg.Roster.Workbook != "":
		return service.FileSource{Path: cfg.Roster.Workbook}
	}
	return nil
}

func (a *App) openRepositories(ctx context.Context, seed *sheet.Workbook) error {
	if a.Config.DBEnabled {
		db, err := database.Open(ctx, &a.Config.Database)
		if err == nil {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				return fmt.Errorf("ensure schema: %w", err)
			}
			a.DB = db
			a.Aliases = repository.NewPostgresAliasRepository(db, a.Logger)
			a.Volunteers = repository.NewPostgresVolunteerRepository(db, a.Logger)
			a.Assignments = repository.NewPostgresAssignmentRepository(db, a.Logger)
			a.Logger.Info("DB enabled for roster repositories")
			return nil
		}
		a.Logger.Warn("DB enabled but connection failed, falling back to memory repositories",
			zap.String("dsn", a.Config.Database.Redacted()),
			zap.Error(err),
		)
	}

	if seed == nil {
		seed = &sheet.Workbook{}
	}
	a.Aliases = repository.NewMemoryAliasRepository(seed.Aliases, seed.Redirects)
	a.Volunteers = repository.NewMemoryVolunteerRepository(seed.Volunteers)

	// 已有别名表时先按它解析一遍，让只读命令也能看到安排
	a.Assignments = repository.NewMemoryAssignmentRepository(seedAssignments(seed, a.Logger))
	return nil
}

func seedAssignments(seed *sheet.Workbook, logger *zap.Logger) []domain.ServiceAssignment {
	if len(seed.Records) == 0 || len(seed.Aliases) == 0 {
		return nil
	}
	resolver, err := alias.NewResolver(seed.Aliases, seed.Redirects)
	if err != nil {
		logger.Warn("Alias sheet is inconsistent, starting with no assignments", zap.Error(err))
		return nil
	}
	return resolver.Assign(seed.Records)
}

func (a *App) openRedis(ctx context.Context) {
	if !a.Config.RedisEnabled {
		return
	}
	client, err := commonredis.Connect(ctx, &a.Config.Redis)
	if err != nil {
		a.Logger.Warn("Redis enabled but ping failed, using in-process store", zap.Error(err))
		return
	}
	a.Redis = client
}

func (a *App) openMQTT() {
	if !a.Config.MQTTEnabled {
		return
	}
	client, err := mqtt.NewClient(&a.Config.MQTT)
	if err != nil {
		a.Logger.Warn("MQTT enabled but connection failed, notifications disabled for mqtt", zap.Error(err))
		return
	}
	a.MQTT = client
}

// notifier 按 NOTIFY_MODE 组合通知通道；通道依赖的连接不可用时跳过
func (a *App) notifier() notify.Notifier {
	var out notify.Multi
	for _, ch := range a.Config.NotifyChannels() {
		switch ch {
		case config.NotifyLog:
			out = append(out, notify.NewLogNotifier(a.Logger))
		case config.NotifyStream:
			if a.Redis == nil {
				a.Logger.Warn("Stream notifications need Redis, skipping")
				continue
			}
			out = append(out, notify.NewStreamNotifier(a.Redis, a.Config.Roster.NotifyStream, a.Config.Roster.StreamMaxLen, a.Logger))
		case config.NotifyMQTT:
			if a.MQTT == nil {
				a.Logger.Warn("MQTT notifications need a broker connection, skipping")
				continue
			}
			out = append(out, notify.NewMQTTNotifier(a.MQTT, a.MQTT.Topic(), a.MQTT.QoS(), a.Logger))
		default:
			a.Logger.Warn("Unknown notify channel", zap.String("channel", ch))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Close 释放连接
func (a *App) Close() {
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
	if a.Redis != nil {
		_ = commonredis.Close(a.Redis)
	}
	if a.DB != nil {
		_ = database.Close(a.DB)
	}
}
