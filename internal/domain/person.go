package domain

// PersonIdentity 同工身份
// person_id 只会被显式 merge 改写，不会在同步时被覆盖
type PersonIdentity struct {
	PersonID        string   `json:"person_id"`
	DisplayName     string   `json:"display_name"`
	Aliases         []string `json:"aliases"`
	OccurrenceCount int      `json:"occurrence_count"`
}

// AliasRow 别名表的一行 (alias, person_id, display_name, occurrence_count)
type AliasRow struct {
	Alias           string `db:"alias" json:"alias"`
	PersonID        string `db:"person_id" json:"person_id"`
	DisplayName     string `db:"display_name" json:"display_name"`
	OccurrenceCount int    `db:"occurrence_count" json:"occurrence_count"`
}

// MergeRedirect 合并记录：已退役的 person_id -> 当前 person_id
type MergeRedirect struct {
	SourceID string `db:"source_id" json:"source_id"`
	TargetID string `db:"target_id" json:"target_id"`
}
