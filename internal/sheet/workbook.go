package sheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"church-roster/internal/domain"

	"github.com/xuri/excelize/v2"
)

// 工作簿中的工作表名
const (
	RosterSheet    = "roster"
	AliasSheet     = "aliases"
	VolunteerSheet = "volunteers"
)

// 日期列可能的表头
var dateHeaders = map[string]bool{
	"date": true, "service_date": true, "日期": true, "主日": true,
}

// 别名表、同工资料表的列
var (
	AliasHeader = []string{"alias", "person_id", "display_name", "occurrence_count"}

	VolunteerHeader = []string{
		"person_id",
		"person_name",
		"family_group",
		"unavailable_start",
		"unavailable_end",
		"unavailable_reason",
		"notes",
		"updated_at",
	}
)

// Workbook 排班工作簿：原始排班表 + 别名表 + 同工资料表
type Workbook struct {
	Records []domain.RawRecord
	// RawRows 排班表原始行（表头 -> 单元格），用于计算内容指纹
	RawRows    []map[string]string
	Aliases    []domain.AliasRow
	Redirects  []domain.MergeRedirect
	Volunteers []domain.MetadataRow
}

// Open 打开本地工作簿
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.NewExternalServiceError(err, "open workbook %s", path)
	}
	defer f.Close()
	return parse(f)
}

// Read 从字节流读取工作簿（远程下载的内容）
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewValidationError("not a valid xlsx workbook: %v", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}
	sheets := f.GetSheetList()

	rosterName := ""
	for _, name := range sheets {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == RosterSheet || name == "排班表" {
			rosterName = name
			break
		}
	}
	if rosterName == "" {
		for _, name := range sheets {
			if lower := strings.ToLower(name); lower != AliasSheet && lower != VolunteerSheet {
				rosterName = name
				break
			}
		}
	}
	if rosterName == "" {
		return nil, domain.NewValidationError("workbook has no roster sheet")
	}

	rows, err := f.GetRows(rosterName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", rosterName, err)
	}
	if err := wb.parseRoster(rosterName, rows); err != nil {
		return nil, err
	}

	for _, name := range sheets {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case AliasSheet:
			rows, err := f.GetRows(name)
			if err != nil {
				return nil, fmt.Errorf("read sheet %s: %w", name, err)
			}
			if err := wb.parseAliases(rows); err != nil {
				return nil, err
			}
		case VolunteerSheet:
			rows, err := f.GetRows(name)
			if err != nil {
				return nil, fmt.Errorf("read sheet %s: %w", name, err)
			}
			if err := wb.parseVolunteers(rows); err != nil {
				return nil, err
			}
		}
	}
	return wb, nil
}

func (wb *Workbook) parseRoster(sheet string, rows [][]string) error {
	wb.Records = []domain.RawRecord{}
	wb.RawRows = []map[string]string{}
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	dateCol := 0
	// 多个表头可映射到同一岗位（导播/直播），按列顺序保留
	type roleCol struct {
		col  int
		role domain.Role
	}
	var roleCols []roleCol
	rawKeys := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h != "" {
			key := h
			if seen[h] {
				key = fmt.Sprintf("%s#%d", h, i+1)
			}
			seen[h] = true
			rawKeys[i] = key
		}
		if dateHeaders[strings.ToLower(h)] {
			dateCol = i
			continue
		}
		if role, err := domain.ParseRole(h); err == nil {
			roleCols = append(roleCols, roleCol{col: i, role: role})
		}
	}

	for n, row := range rows[1:] {
		dateCell := cellAt(row, dateCol)
		if dateCell == "" {
			continue
		}
		date, err := parseDateCell(dateCell)
		if err != nil {
			return domain.NewValidationError("%s row %d: %v", sheet, n+2, err)
		}

		raw := make(map[string]string, len(header))
		for i, key := range rawKeys {
			if key != "" {
				raw[key] = cellAt(row, i)
			}
		}
		wb.RawRows = append(wb.RawRows, raw)

		rec := domain.RawRecord{ServiceDate: date, Names: make(map[domain.Role]string, len(roleCols))}
		// 空单元格也保留，表示该岗位空缺；同岗位多列用 "/" 拼接
		for _, rc := range roleCols {
			cell := cellAt(row, rc.col)
			prev, ok := rec.Names[rc.role]
			switch {
			case !ok || prev == "":
				rec.Names[rc.role] = cell
			case cell != "":
				rec.Names[rc.role] = prev + "/" + cell
			}
		}
		wb.Records = append(wb.Records, rec)
	}
	return nil
}

func (wb *Workbook) parseAliases(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	idx := headerIndex(rows[0])
	for n, row := range rows[1:] {
		// merged_into 列记录合并关系：person_id 已合并到 merged_into
		if target := cellByName(row, idx, "merged_into"); target != "" {
			if source := cellByName(row, idx, "person_id"); source != "" {
				wb.Redirects = append(wb.Redirects, domain.MergeRedirect{SourceID: source, TargetID: target})
			}
		}
		alias := cellByName(row, idx, "alias")
		if alias == "" {
			continue
		}
		count := 0
		if s := cellByName(row, idx, "occurrence_count"); s != "" {
			c, err := strconv.Atoi(s)
			if err != nil {
				return domain.NewValidationError("%s row %d: occurrence_count %q is not a number", AliasSheet, n+2, s)
			}
			count = c
		}
		wb.Aliases = append(wb.Aliases, domain.AliasRow{
			Alias:           alias,
			PersonID:        cellByName(row, idx, "person_id"),
			DisplayName:     cellByName(row, idx, "display_name"),
			OccurrenceCount: count,
		})
	}
	return nil
}

func (wb *Workbook) parseVolunteers(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	idx := headerIndex(rows[0])
	for n, row := range rows[1:] {
		m := domain.MetadataRow{
			PersonID:          cellByName(row, idx, "person_id"),
			PersonName:        cellByName(row, idx, "person_name"),
			FamilyGroup:       cellByName(row, idx, "family_group"),
			UnavailableReason: cellByName(row, idx, "unavailable_reason"),
			Notes:             cellByName(row, idx, "notes"),
		}
		if m.PersonID == "" {
			continue
		}
		if s := cellByName(row, idx, "unavailable_start"); s != "" {
			d, err := parseDateCell(s)
			if err != nil {
				return domain.NewValidationError("%s row %d: %v", VolunteerSheet, n+2, err)
			}
			m.UnavailableStart = &d
			end, err := parseWindowEndCell(cellByName(row, idx, "unavailable_end"))
			if err != nil {
				return domain.NewValidationError("%s row %d: %v", VolunteerSheet, n+2, err)
			}
			m.UnavailableEnd = end
		}
		if s := cellByName(row, idx, "updated_at"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				m.UpdatedAt = t.UTC()
			} else if d, err := parseDateCell(s); err == nil {
				m.UpdatedAt = d
			}
		}
		wb.Volunteers = append(wb.Volunteers, m)
	}
	return nil
}

// Encode 写出完整工作簿；无限期的结束日期写为哨兵日期
func (wb *Workbook) Encode() ([]byte, error) {
	f := excelize.NewFile()

	roles := domain.AllRoles()
	rosterHeader := []string{"date"}
	for _, r := range roles {
		rosterHeader = append(rosterHeader, string(r))
	}
	var rosterRows [][]any
	for _, rec := range wb.Records {
		row := []any{domain.FormatDate(rec.ServiceDate)}
		for _, r := range roles {
			row = append(row, rec.Names[r])
		}
		rosterRows = append(rosterRows, row)
	}

	if err := writeTable(f, RosterSheet, rosterHeader, rosterRows, 14); err != nil {
		f.Close()
		return nil, err
	}
	if err := wb.writeTables(f); err != nil {
		f.Close()
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(RosterSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return finish(f)
}

// WriteTables 只重写 path 里的别名表和同工资料表，排班表保持原样
func (wb *Workbook) WriteTables(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.NewExternalServiceError(err, "open workbook %s", path)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case AliasSheet, VolunteerSheet:
			if err := f.DeleteSheet(name); err != nil {
				return fmt.Errorf("failed to delete sheet %s: %w", name, err)
			}
		}
	}
	if err := wb.writeTables(f); err != nil {
		return err
	}

	// SaveAs 按扩展名判断格式，临时文件保留原扩展名
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

func (wb *Workbook) writeTables(f *excelize.File) error {
	aliasHeader := append(append([]string{}, AliasHeader...), "merged_into")
	var aliasRows [][]any
	for _, a := range wb.Aliases {
		aliasRows = append(aliasRows, []any{a.Alias, a.PersonID, a.DisplayName, a.OccurrenceCount, ""})
	}
	// 已合并掉的 id 不再有别名，用一行只带 person_id 的记录保存合并关系
	for _, m := range wb.Redirects {
		aliasRows = append(aliasRows, []any{"", m.SourceID, "", "", m.TargetID})
	}

	var volunteerRows [][]any
	for _, v := range wb.Volunteers {
		start, end := "", ""
		if v.UnavailableStart != nil {
			start = domain.FormatDate(*v.UnavailableStart)
			end = domain.FormatWindowEnd(v.UnavailableEnd)
		}
		updated := ""
		if !v.UpdatedAt.IsZero() {
			updated = v.UpdatedAt.UTC().Format(time.RFC3339)
		}
		volunteerRows = append(volunteerRows, []any{
			v.PersonID, v.PersonName, v.FamilyGroup, start, end, v.UnavailableReason, v.Notes, updated,
		})
	}

	if err := writeTable(f, AliasSheet, aliasHeader, aliasRows, 20); err != nil {
		return err
	}
	return writeTable(f, VolunteerSheet, VolunteerHeader, volunteerRows, 18)
}

// parseDateCell 文本日期或 Excel 序列号
func parseDateCell(s string) (time.Time, error) {
	if d, err := domain.ParseDate(s); err == nil {
		return d, nil
	}
	if serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed date serial %q: %w", s, err)
		}
		return domain.TruncateDate(t), nil
	}
	return time.Time{}, fmt.Errorf("malformed date: %q", s)
}

func parseWindowEndCell(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := parseDateCell(s)
	if err != nil {
		return nil, err
	}
	return domain.ParseWindowEnd(domain.FormatDate(d))
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func cellByName(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok {
		return ""
	}
	return cellAt(row, i)
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// writeTable 写表头（加粗、底色、边框）和数据行，冻结首行
func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, width float64) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	if len(headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(headers))
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", last, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for r, row := range rows {
		for c, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

// finish 写入内存并关闭文件
func finish(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
