package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileKV 落盘的 MemoryKV：命令行没有 Redis 时用它在多次运行之间保留检查点
type FileKV struct {
	*MemoryKV
	path string
}

type fileEntry struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// OpenFileKV 打开（或新建）KV 文件
func OpenFileKV(path string) (*FileKV, error) {
	kv := &FileKV{MemoryKV: NewMemoryKV(), path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read kv file %s: %w", path, err)
	}

	var entries map[string]fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse kv file %s: %w", path, err)
	}
	for k, e := range entries {
		kv.data[k] = memoryItem{value: e.Value, expires: e.Expires}
	}
	return kv, nil
}

func (f *FileKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := f.MemoryKV.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return f.flush()
}

// flush 先写临时文件再改名，过期条目不落盘
func (f *FileKV) flush() error {
	now := time.Now()
	f.mu.Lock()
	entries := make(map[string]fileEntry, len(f.data))
	for k, item := range f.data {
		if !item.expires.IsZero() && now.After(item.expires) {
			continue
		}
		entries[k] = fileEntry{Value: item.value, Expires: item.expires}
	}
	f.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("write kv file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write kv file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write kv file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
