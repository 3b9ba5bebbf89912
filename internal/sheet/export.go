package sheet

import (
	"fmt"
	"sort"
	"strings"

	"church-roster/internal/conflict"
	"church-roster/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	ConflictSheet = "Conflicts"
	SummarySheet  = "Summary"
)

// ConflictExportHeader 冲突报表表头
var ConflictExportHeader = []string{
	"Week",
	"Severity",
	"Type",
	"Description",
	"Affected Persons",
	"Suggestion",
}

// ExportConflicts 把冲突检查结果导出为 xlsx
// error 级冲突整行标红
func ExportConflicts(res conflict.Result) ([]byte, error) {
	f := excelize.NewFile()

	rows := make([][]any, 0, len(res.Conflicts))
	for _, c := range res.Conflicts {
		rows = append(rows, []any{
			c.Week,
			string(c.Severity),
			string(c.Type),
			c.Description,
			describePersons(c.AffectedPersons),
			c.Suggestion,
		})
	}
	if err := writeTable(f, ConflictSheet, ConflictExportHeader, rows, 22); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetColWidth(ConflictSheet, "D", "D", 60); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	errorStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create error style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(ConflictExportHeader))
	for i, c := range res.Conflicts {
		if c.Severity != domain.SeverityError {
			continue
		}
		row := i + 2
		if err := f.SetCellStyle(ConflictSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), errorStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set error style: %w", err)
		}
	}

	summary := [][]any{{"period", res.Period}, {"total", res.Summary.Total}}
	for _, k := range sortedKeys(res.Summary.BySeverity) {
		summary = append(summary, []any{"severity:" + k, res.Summary.BySeverity[domain.Severity(k)]})
	}
	for _, k := range sortedKeys(res.Summary.ByType) {
		summary = append(summary, []any{"type:" + k, res.Summary.ByType[domain.ConflictType(k)]})
	}
	if err := writeTable(f, SummarySheet, []string{"Metric", "Value"}, summary, 24); err != nil {
		f.Close()
		return nil, err
	}

	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(ConflictSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return finish(f)
}

func describePersons(persons []domain.AffectedPerson) string {
	parts := make([]string, 0, len(persons))
	for _, p := range persons {
		if len(p.Roles) == 0 {
			parts = append(parts, p.DisplayName)
			continue
		}
		roles := make([]string, 0, len(p.Roles))
		for _, r := range p.Roles {
			roles = append(roles, string(r))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", p.DisplayName, strings.Join(roles, "/")))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
