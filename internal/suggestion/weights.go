package suggestion

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PenaltyTier 最近服事过的扣分档：距离 <= WithinDays 天时加 Delta（负数）
type PenaltyTier struct {
	WithinDays int `json:"within_days" yaml:"within_days"`
	Delta      int `json:"delta" yaml:"delta"`
}

// Weights 打分权重表
// 数值可由配置文件覆盖，见 LoadWeights
type Weights struct {
	Base             int `json:"base" yaml:"base"`
	Available        int `json:"available" yaml:"available"`
	Unavailable      int `json:"unavailable" yaml:"unavailable"`
	NoFamilyConflict int `json:"no_family_conflict" yaml:"no_family_conflict"`
	FamilyConflict   int `json:"family_conflict" yaml:"family_conflict"`
	BelowAverageLoad int `json:"below_average_load" yaml:"below_average_load"`
	RoleGap          int `json:"role_gap" yaml:"role_gap"`
	RoleFit          int `json:"role_fit" yaml:"role_fit"`

	// RecentPenalties 按 WithinDays 升序匹配第一档
	RecentPenalties []PenaltyTier `json:"recent_penalties" yaml:"recent_penalties"`

	RoleGapDays        int     `json:"role_gap_days" yaml:"role_gap_days"`
	BalanceWindowWeeks int     `json:"balance_window_weeks" yaml:"balance_window_weeks"`
	HeavyLoadRatio     float64 `json:"heavy_load_ratio" yaml:"heavy_load_ratio"`
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		Base:             50,
		Available:        10,
		Unavailable:      -100,
		NoFamilyConflict: 10,
		FamilyConflict:   -30,
		BelowAverageLoad: 20,
		RoleGap:          10,
		RoleFit:          15,
		RecentPenalties: []PenaltyTier{
			{WithinDays: 7, Delta: -20},
			{WithinDays: 14, Delta: -10},
		},
		RoleGapDays:        28,
		BalanceWindowWeeks: 12,
		HeavyLoadRatio:     1.5,
	}
}

// LoadWeights 在默认权重上叠加配置文件（YAML，兼容 JSON）
// path 为空时直接返回默认权重
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		if jsonErr := json.Unmarshal(data, &w); jsonErr != nil {
			return w, fmt.Errorf("parse weights (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	if err := w.Validate(); err != nil {
		return w, err
	}
	return w, nil
}

// Validate 权重自检
func (w Weights) Validate() error {
	if w.Unavailable >= 0 {
		return fmt.Errorf("unavailable weight must be negative, got %d", w.Unavailable)
	}
	if w.RoleGapDays < 0 || w.BalanceWindowWeeks < 0 {
		return fmt.Errorf("role_gap_days and balance_window_weeks must not be negative")
	}
	for _, t := range w.RecentPenalties {
		if t.WithinDays <= 0 {
			return fmt.Errorf("recent penalty within_days must be positive, got %d", t.WithinDays)
		}
	}
	return nil
}

// recentPenalty 距离 days 天时的扣分；不在任何档内返回 0
func (w Weights) recentPenalty(days int) int {
	tiers := make([]PenaltyTier, len(w.RecentPenalties))
	copy(tiers, w.RecentPenalties)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].WithinDays < tiers[j].WithinDays })
	for _, t := range tiers {
		if days <= t.WithinDays {
			return t.Delta
		}
	}
	return 0
}
