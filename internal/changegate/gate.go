package changegate

import (
	"encoding/hex"
	"sort"
	"strings"

	"church-roster/internal/domain"

	"github.com/zeebo/xxh3"
)

// 决策原因
const (
	ReasonForced       = "forced"
	ReasonNoCheckpoint = "no previous checkpoint"
	ReasonRowCount     = "row count changed"
	ReasonContentHash  = "content hash changed"
	ReasonNoChanges    = "no changes detected"
)

// Row 原始表格中的一行：列名 -> 单元格文本
type Row map[string]string

// Decision 是否需要重新跑清洗
type Decision struct {
	Run    bool   `json:"should_run"`
	Reason string `json:"reason"`
}

// Fingerprint 原始行的内容指纹
// 行按来源顺序参与计算，行内按列名排序；行顺序变化视为内容变化
func Fingerprint(rows []Row) string {
	h := xxh3.New()
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(row[k])
		}
		b.WriteByte('\x1e')
		_, _ = h.WriteString(b.String())
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}

// ShouldRun 与上次检查点比较，决定是否重跑
func ShouldRun(hash string, rowCount int, force bool, last *domain.Checkpoint) Decision {
	switch {
	case force:
		return Decision{Run: true, Reason: ReasonForced}
	case last == nil:
		return Decision{Run: true, Reason: ReasonNoCheckpoint}
	case last.RowCount != rowCount:
		return Decision{Run: true, Reason: ReasonRowCount}
	case last.Hash != hash:
		return Decision{Run: true, Reason: ReasonContentHash}
	}
	return Decision{Run: false, Reason: ReasonNoChanges}
}
