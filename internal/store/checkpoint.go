package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"church-roster/internal/domain"
)

const (
	checkpointKey       = "roster:checkpoint:latest"
	checkpointRunPrefix = "roster:checkpoint:run:"
)

// CheckpointStore 清洗流水线检查点
// latest 永久保存；每次运行另存一份带 TTL 的历史，供排查
type CheckpointStore struct {
	kv         KV
	historyTTL time.Duration
}

func NewCheckpointStore(kv KV, historyTTL time.Duration) *CheckpointStore {
	return &CheckpointStore{kv: kv, historyTTL: historyTTL}
}

// Load 读取最近一次检查点；从未运行过返回 (nil, nil)
func (s *CheckpointStore) Load(ctx context.Context) (*domain.Checkpoint, error) {
	raw, err := s.kv.Get(ctx, checkpointKey)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, nil
		}
		return nil, domain.NewExternalServiceError(err, "load checkpoint")
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// Save 写入检查点
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.kv.Set(ctx, checkpointKey, string(b), 0); err != nil {
		return domain.NewExternalServiceError(err, "save checkpoint")
	}
	if cp.RunID != "" && s.historyTTL > 0 {
		if err := s.kv.Set(ctx, checkpointRunPrefix+cp.RunID, string(b), s.historyTTL); err != nil {
			return domain.NewExternalServiceError(err, "save checkpoint history")
		}
	}
	return nil
}

// History 仍在保留期内的历史检查点，按时间倒序
func (s *CheckpointStore) History(ctx context.Context) ([]domain.Checkpoint, error) {
	keys, err := s.kv.ScanKeys(ctx, checkpointRunPrefix+"*")
	if err != nil {
		return nil, domain.NewExternalServiceError(err, "scan checkpoint history")
	}
	out := make([]domain.Checkpoint, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, k)
		if errors.Is(err, ErrMiss) {
			continue
		}
		if err != nil {
			return nil, domain.NewExternalServiceError(err, "load checkpoint %s", k)
		}
		var cp domain.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
