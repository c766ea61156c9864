package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const scenarioYAML = `
identity:
  user_id: alice
  role: team_member
project:
  id: p1
  manager: pm-1
  members: [pm-1, alice, bob]
grant:
  preset: editor
  tokens: [manage-comments]
checks:
  - capability: edit
    expect: allow
  - capability: manage_team
    expect: deny
  - capability: manage_comments
    ownership: {owner_user_id: bob, kind: comment, action: delete}
    expect: deny
  - capability: manage_subtasks
    ownership: {owner_user_id: alice, kind: subtask}
    expect: allow
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCheckCommandJSON(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := CheckCommand(CheckOptions{
		OutputOptions: OutputOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr},
		Path:          writeScenario(t, scenarioYAML),
	})
	require.Equal(t, 0, code, stderr.String())

	var results []CheckResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &results))
	require.Len(t, results, 4)
	assert.Equal(t, "explicit_grant", results[0].Reason)
	assert.Equal(t, "no_grant", results[1].Reason)
	assert.Equal(t, "foreign_content", results[2].Reason)
	assert.Equal(t, "self_ownership", results[3].Reason)
}

func TestCheckCommandReportsMismatch(t *testing.T) {
	body := strings.Replace(scenarioYAML, "  - capability: manage_team\n    expect: deny", "  - capability: manage_team\n    expect: allow", 1)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := CheckCommand(CheckOptions{
		OutputOptions: OutputOptions{Stdout: stdout, Stderr: stderr},
		Path:          writeScenario(t, body),
	})
	assert.Equal(t, 10, code)
	assert.Contains(t, stdout.String(), "MISMATCH")
}

func TestCheckCommandRejectsBadInput(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := CheckCommand(CheckOptions{
		OutputOptions: OutputOptions{Stdout: new(bytes.Buffer), Stderr: stderr},
		Path:          writeScenario(t, "identity: {user_id: a}\nunknown: 1\n"),
	})
	assert.Equal(t, 1, code)

	stderr.Reset()
	bad := strings.Replace(scenarioYAML, "[manage-comments]", "[manage-everything]", 1)
	code = CheckCommand(CheckOptions{
		OutputOptions: OutputOptions{Stdout: new(bytes.Buffer), Stderr: stderr},
		Path:          writeScenario(t, bad),
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "manage-everything")
}

func TestPresetsCommandYAML(t *testing.T) {
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, PresetsCommand(OutputOptions{Stdout: stdout}))

	var doc catalogDoc
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &doc))
	assert.Len(t, doc.Capabilities, 10)
	require.NotEmpty(t, doc.Presets)
	for _, p := range doc.Presets {
		assert.Contains(t, p.Tokens, "view", p.Name)
	}
}

func TestValidateCommand(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	assert.Equal(t, 0, ValidateCommand([]string{" Manage Tasks ", "VIEW"}, OutputOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr}))
	assert.JSONEq(t, `{"tokens":["view","manage_tasks"]}`, stdout.String())

	assert.Equal(t, 1, ValidateCommand([]string{"view", "root"}, OutputOptions{Stdout: stdout, Stderr: stderr}))
	assert.Contains(t, stderr.String(), "root")
}
