package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"church-roster/common/logger"
	"church-roster/internal/app"
	"church-roster/internal/config"
	"church-roster/internal/service"
	"church-roster/internal/sheet"
	"church-roster/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session 一次命令的工作簿和装配好的服务
type session struct {
	path string
	wb   *sheet.Workbook
	app  *app.App
	out  io.Writer
}

func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("workbook")
	configPath, _ := cmd.Flags().GetString("config")
	statePath, _ := cmd.Flags().GetString("state")
	level, _ := cmd.Flags().GetString("log-level")

	if path == "" {
		return nil, fmt.Errorf("--workbook (or ROSTER_WORKBOOK) is required")
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Roster.Workbook = path
	cfg.Roster.SourceURL = ""

	log, err := logger.NewLogger(level, "console", "rosterctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	wb, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	if len(wb.Aliases) == 0 && cmd.Name() != "sync" && cmd.Name() != "run" {
		log.Warn("Alias sheet is empty, run `rosterctl sync` first to resolve names")
	}

	opts := app.Options{Seed: wb, Source: service.FileSource{Path: path}}
	if !cfg.RedisEnabled {
		if statePath == "" {
			statePath = defaultStatePath(path)
		}
		kv, err := store.OpenFileKV(statePath)
		if err != nil {
			return nil, err
		}
		opts.KV = kv
	}

	a, err := app.New(cmd.Context(), cfg, log, opts)
	if err != nil {
		return nil, err
	}
	return &session{path: path, wb: wb, app: a, out: cmd.OutOrStdout()}, nil
}

// defaultStatePath 检查点文件放在工作簿旁边
func defaultStatePath(workbook string) string {
	return filepath.Join(filepath.Dir(workbook), "."+filepath.Base(workbook)+".state.json")
}

// save 把别名表和同工资料表写回工作簿；用数据库时数据已在库里，不写文件
func (s *session) save(cmd *cobra.Command) error {
	if s.app.DB != nil {
		return nil
	}
	aliases, redirects, volunteers, err := s.app.Roster.Tables(cmd.Context())
	if err != nil {
		return err
	}
	s.wb.Aliases, s.wb.Redirects, s.wb.Volunteers = aliases, redirects, volunteers
	if err := s.wb.WriteTables(s.path); err != nil {
		return err
	}
	s.app.Logger.Debug("Workbook tables written", zap.String("path", s.path), zap.Int("aliases", len(aliases)))
	return nil
}

func (s *session) print(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s *session) close() {
	s.app.Close()
	_ = s.app.Logger.Sync()
}
