package domain

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictFamily            ConflictType = "family_conflict"
	ConflictUnavailability    ConflictType = "unavailability_conflict"
	ConflictOverload          ConflictType = "overload_conflict"
	ConflictDataInconsistency ConflictType = "data_inconsistency"
)

// Severity 严重程度：error 需要处理，warning 仅提示
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rank error 排在 warning 前面
func (s Severity) Rank() int {
	if s == SeverityError {
		return 0
	}
	return 1
}

// AffectedPerson 冲突涉及的同工
type AffectedPerson struct {
	PersonID    string `json:"person_id"`
	DisplayName string `json:"display_name"`
	Roles       []Role `json:"roles,omitempty"`
}

// Conflict 排班冲突
type Conflict struct {
	Type            ConflictType     `json:"type"`
	Severity        Severity         `json:"severity"`
	Week            string           `json:"week"` // 服事周主日 YYYY-MM-DD；全局问题为空
	Description     string           `json:"description"`
	AffectedPersons []AffectedPerson `json:"affected_persons"`
	Suggestion      string           `json:"suggestion,omitempty"`
}
