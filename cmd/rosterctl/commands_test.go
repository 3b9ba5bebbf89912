package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"church-roster/internal/conflict"
	"church-roster/internal/domain"
	"church-roster/internal/service"
	"church-roster/internal/sheet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()
	wb := &sheet.Workbook{Records: []domain.RawRecord{
		{
			ServiceDate: domain.MustDate("2025-11-02"),
			Names:       map[domain.Role]string{domain.RoleLead: "张三", domain.RoleTeam: "李四/王五"},
		},
		{
			ServiceDate: domain.MustDate("2025-11-09"),
			Names:       map[domain.Role]string{domain.RoleLead: "张三", domain.RoleTeam: "李四"},
		},
	}}
	data, err := wb.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// runCLI 执行一条命令，返回 stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestSync_WritesAliasesBack(t *testing.T) {
	path := writeWorkbook(t)

	out, err := runCLI(t, "sync", "-w", path)
	require.NoError(t, err)
	res := decode[service.CleanResponse](t, out)
	assert.Len(t, res.Added, 3)
	assert.Equal(t, 2, res.RecordCount)

	wb, err := sheet.Open(path)
	require.NoError(t, err)
	assert.Len(t, wb.Aliases, 3)
	assert.Len(t, wb.Records, 2)

	out, err = runCLI(t, "identities", "-w", path)
	require.NoError(t, err)
	ids := decode[[]domain.PersonIdentity](t, out)
	assert.Len(t, ids, 3)
}

func TestRun_ThenGateSkips(t *testing.T) {
	path := writeWorkbook(t)

	out, err := runCLI(t, "run", "-w", path)
	require.NoError(t, err)
	first := decode[service.PipelineResult](t, out)
	assert.True(t, first.Decision.Run)
	require.NotNil(t, first.Checkpoint)
	assert.FileExists(t, defaultStatePath(path))

	out, err = runCLI(t, "gate", "-w", path)
	require.NoError(t, err)
	gate := decode[service.PipelineResult](t, out)
	assert.False(t, gate.Decision.Run)
	assert.Equal(t, first.Hash, gate.Hash)

	out, err = runCLI(t, "run", "-w", path)
	require.NoError(t, err)
	assert.False(t, decode[service.PipelineResult](t, out).Decision.Run)

	out, err = runCLI(t, "history", "-w", path)
	require.NoError(t, err)
	assert.Len(t, decode[[]domain.Checkpoint](t, out), 1)
}

func TestMerge_PersistsRedirect(t *testing.T) {
	path := writeWorkbook(t)
	_, err := runCLI(t, "sync", "-w", path)
	require.NoError(t, err)

	out, err := runCLI(t, "merge", "-w", path, "--source", "person_王五", "--target", "person_李四")
	require.NoError(t, err)
	res := decode[service.MergeResponse](t, out)
	assert.Equal(t, 1, res.MergedAliasCount)

	wb, err := sheet.Open(path)
	require.NoError(t, err)
	require.Len(t, wb.Redirects, 1)
	assert.Equal(t, "person_李四", wb.Redirects[0].TargetID)

	_, err = runCLI(t, "merge", "-w", path, "--source", "person_nobody", "--target", "person_李四")
	require.Error(t, err)
}

func TestUnavailable_FlagsConflict(t *testing.T) {
	path := writeWorkbook(t)
	_, err := runCLI(t, "sync", "-w", path)
	require.NoError(t, err)

	_, err = runCLI(t, "unavailable", "-w", path,
		"--person", "person_张三", "--from", "2025-11-05", "--to", "2025-11-20", "--reason", "travel")
	require.NoError(t, err)

	out, err := runCLI(t, "available", "-w", path, "--person", "person_张三", "--date", "2025-11-09")
	require.NoError(t, err)
	assert.False(t, decode[service.AvailabilityResponse](t, out).Available)

	export := filepath.Join(t.TempDir(), "conflicts.xlsx")
	out, err = runCLI(t, "check", "-w", path, "--period", "2025-11", "--export", export)
	require.NoError(t, err)
	res := decode[conflict.Result](t, out)
	assert.Equal(t, 1, res.Summary.ByType[domain.ConflictUnavailability])
	assert.FileExists(t, export)

	_, err = runCLI(t, "check", "-w", path, "--period", "2025-11", "--fail-on-error")
	require.Error(t, err)

	_, err = runCLI(t, "check", "-w", path, "--period", "2025-11", "--fail-on-error", "--no-availability")
	require.NoError(t, err)
}

func TestFamilyAndSuggest(t *testing.T) {
	path := writeWorkbook(t)
	_, err := runCLI(t, "sync", "-w", path)
	require.NoError(t, err)

	_, err = runCLI(t, "family", "-w", path, "--person", "person_张三", "--group", "fam-1")
	require.NoError(t, err)
	out, err := runCLI(t, "family", "-w", path, "--person", "person_李四", "--group", "fam-1")
	require.NoError(t, err)
	group := decode[domain.FamilyGroup](t, out)
	assert.ElementsMatch(t, []string{"person_张三", "person_李四"}, group.Members)

	out, err = runCLI(t, "suggest", "-w", path, "--date", "2025-11-16", "--roles", "lead,team", "--limit", "2")
	require.NoError(t, err)
	res := decode[service.SuggestResponse](t, out)
	assert.Equal(t, "2025-11-16", res.Date)
	assert.Contains(t, res.Suggestions, domain.RoleLead)
	assert.LessOrEqual(t, len(res.Suggestions[domain.RoleTeam]), 2)
}

func TestRequiresWorkbook(t *testing.T) {
	t.Setenv("ROSTER_WORKBOOK", "")
	_, err := runCLI(t, "identities")
	require.Error(t, err)

	_, err = runCLI(t, "suggest", "-w", writeWorkbook(t), "--date", "not-a-date")
	require.Error(t, err)
}
