package domain

import "time"

// Checkpoint 清洗流水线上次运行时的原始数据指纹
type Checkpoint struct {
	Hash      string    `json:"last_hash"`
	RowCount  int       `json:"last_row_count"`
	Timestamp time.Time `json:"last_run_timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}
