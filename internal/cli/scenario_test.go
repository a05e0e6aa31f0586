package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestScenario_AllPass(t *testing.T) {
	out, err := execute(t, "scenario", scenariosDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ pvc_win")
	assert.Contains(t, out, "✓ continuation_win")
	assert.Contains(t, out, "Scenario Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestScenario_FilterJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "scenario", scenariosDir, "--filter", "pvc_*")
	require.NoError(t, err, out)

	var resp struct {
		Status string         `json:"status"`
		Data   ScenarioReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	names := []string{resp.Data.Scenarios[0].Name, resp.Data.Scenarios[1].Name}
	assert.ElementsMatch(t, []string{"pvc_win", "pvc_reroll"}, names)
}

func copyScenario(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := os.ReadFile(filepath.Join(scenariosDir, name+".yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0644))
	return dir
}

func TestScenario_UpdateThenCompare(t *testing.T) {
	dir := copyScenario(t, "pvc_win")
	goldenDir := filepath.Join(filepath.Dir(dir), "golden")

	out, err := execute(t, "scenario", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ pvc_win (golden updated)")

	written, err := os.ReadFile(filepath.Join(goldenDir, "pvc_win.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/pvc_win.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	out, err = execute(t, "scenario", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ pvc_win")
}

func TestScenario_GoldenMismatch(t *testing.T) {
	dir := copyScenario(t, "pvc_win")
	goldenDir := filepath.Join(t.TempDir(), "elsewhere")
	require.NoError(t, os.MkdirAll(goldenDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "pvc_win.golden"), []byte("{}"), 0644))

	out, err := execute(t, "--format", "json", "scenario", dir, "--golden", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
}

func TestScenario_NoGoldenUsesAssertions(t *testing.T) {
	dir := copyScenario(t, "rejections")

	out, err := execute(t, "scenario", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ rejections")
}

func TestScenario_Errors(t *testing.T) {
	_, err := execute(t, "scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")

	_, err = execute(t, "scenario", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "scenario", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "broken.yaml"), []byte("name: broken\nbogus: 1\n"), 0644))
	_, err = execute(t, "scenario", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenarios")
}

func TestScenario_Empty(t *testing.T) {
	out, err := execute(t, "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
