package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalcontext/ecp/pkg/eval"
	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/protocol"
	"github.com/evalcontext/ecp/pkg/results"
	"github.com/evalcontext/ecp/pkg/transport"
)

const testManifest = `
name: echo agent
target: ./agent
scenarios:
  - name: greeting
    steps:
      - input: hello
        graders:
          - type: text_match
            condition: contains
            value: hello
          - type: text_match
            condition: contains
            value: goodbye
  - name: broken
    steps:
      - input: crash
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// echoAgent answers every step with "echo: <input>" and crashes on "crash".
type echoAgent struct{}

func (echoAgent) Start(context.Context) error { return nil }
func (echoAgent) Stop() error                 { return nil }

func (echoAgent) Call(_ context.Context, method string, params any, _ time.Duration) (json.RawMessage, error) {
	if method == protocol.MethodInitialize {
		return json.RawMessage(`{"name":"echo"}`), nil
	}
	input := params.(protocol.StepParams).Input
	if input == "crash" {
		return nil, &transport.CrashError{Method: method, Err: errors.New("exit status 1")}
	}
	out, _ := json.Marshal(map[string]string{"public_output": "echo: " + input})
	return out, nil
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func mustReadManifest(t *testing.T, content string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Read([]byte(content))
	require.NoError(t, err)
	return m
}

func writeSummaryFile(t *testing.T, summary *eval.RunSummary) string {
	t.Helper()
	data, err := json.MarshalIndent(summary, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func executeRun(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRunCmd(&runOptions{newAgent: func(string) eval.AgentProcess { return echoAgent{} }})
	cmd.SetArgs(args)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(context.Background())

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeManifest(t, testManifest)
	reportPath := filepath.Join(t.TempDir(), "report.html")

	stdout, _, err := executeRun(t, "-m", path, "--report", reportPath)
	require.NoError(t, err, "failed checks must not fail the command")

	assert.Contains(t, stdout, "Scenario: greeting")
	assert.Contains(t, stdout, `text_match(public_output): Text does not contain "goodbye"`)
	assert.Contains(t, stdout, "Scenario aborted during stepping")
	assert.Contains(t, stdout, "Results saved to: ecp-echo-agent-out.json")
	assert.Contains(t, stdout, "Checks Passed: 1/2")
	assert.Contains(t, stdout, "Scenarios Passed: 0/2")

	summary, err := results.Load("ecp-echo-agent-out.json")
	require.NoError(t, err)
	assert.Equal(t, "echo agent", summary.Name)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 2, summary.Total)
	require.Len(t, summary.Scenarios, 2)
	assert.Equal(t, "echo", summary.Scenarios[0].Agent)
	assert.Equal(t, eval.PhaseStepping, summary.Scenarios[1].FailedPhase)

	html, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Scenario: greeting")
}

func TestRunCommandJSONOutput(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeManifest(t, testManifest)

	stdout, stderr, err := executeRun(t, "-m", path, "-o", "json", "--scenario", "^greet")
	require.NoError(t, err)

	var summary eval.RunSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), "stdout must be the JSON summary alone")
	require.Len(t, summary.Scenarios, 1)
	assert.Equal(t, "greeting", summary.Scenarios[0].Name)
	assert.Contains(t, stderr, "Starting Evaluation")
}

func TestRunCommandWarnsOnUnknownVersion(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeManifest(t, "manifest_version: \"1.0\"\n"+testManifest)

	stdout, stderr, err := executeRun(t, "-m", path, "--scenario", "^greet")
	require.NoError(t, err)
	assert.Contains(t, stderr, "[warn] unknown manifest_version, reading it as v1 manifest_version=1.0")
	assert.Contains(t, stdout, "Scenario: greeting")
}

func TestRunCommandErrors(t *testing.T) {
	tt := map[string]struct {
		args        func(t *testing.T) []string
		errContains string
	}{
		"manifest flag is required": {
			args:        func(*testing.T) []string { return []string{} },
			errContains: `required flag(s) "manifest" not set`,
		},
		"missing manifest": {
			args:        func(*testing.T) []string { return []string{"-m", "/nonexistent/manifest.yaml"} },
			errContains: "failed to load manifest",
		},
		"invalid manifest": {
			args: func(t *testing.T) []string {
				return []string{"-m", writeManifest(t, "name: x\nscenarios: []\n")}
			},
			errContains: "invalid manifest",
		},
		"unknown output format": {
			args: func(t *testing.T) []string {
				return []string{"-m", writeManifest(t, testManifest), "-o", "xml"}
			},
			errContains: "unknown output format: xml",
		},
		"bad scenario pattern": {
			args: func(t *testing.T) []string {
				return []string{"-m", writeManifest(t, testManifest), "--scenario", "("}
			},
			errContains: "failed to create eval runner",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, _, err := executeRun(t, tc.args(t)...)
			assert.ErrorContains(t, err, tc.errContains)
		})
	}
}

func TestBuildJudgeWithoutCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	m := mustReadManifest(t, `
target: ./agent
scenarios:
  - name: polite
    steps:
      - input: hi
        graders:
          - type: llm_judge
            prompt: Is it polite?
`)

	var warnings bytes.Buffer
	judge := buildJudge(m, "gpt-test", &warnings)
	require.NotNil(t, judge)
	assert.Contains(t, warnings.String(), "llm_judge checks will fail")

	_, err := judge.EvaluateText(context.Background(), "Is it polite?", "hi")
	assert.Error(t, err)
}

func TestBuildJudgeQuietWhenUnused(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	var warnings bytes.Buffer
	judge := buildJudge(mustReadManifest(t, testManifest), "", &warnings)
	require.NotNil(t, judge)
	assert.Empty(t, warnings.String())
}

func TestBuildJudgeModelOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	m := mustReadManifest(t, "target: ./agent\njudge:\n  model: from-manifest\n")

	judge := buildJudge(m, "", new(bytes.Buffer))
	assert.Equal(t, "from-manifest", judge.ModelName())

	judge = buildJudge(m, "from-flag", new(bytes.Buffer))
	assert.Equal(t, "from-flag", judge.ModelName())
	assert.Equal(t, "from-manifest", m.Judge.Model, "the manifest is left untouched")
}

func TestResultsFileName(t *testing.T) {
	assert.Equal(t, "ecp-weather-agent-out.json", resultsFileName("weather agent"))
	assert.Equal(t, "ecp-a-b-out.json", resultsFileName("a/b"))
	assert.Equal(t, "ecp-run-out.json", resultsFileName(""))
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer

	quiet := newLogHandler(&buf, false)
	quiet.Debug("hidden", nil)
	quiet.Error("also hidden", nil)
	quiet.Warn("discarding non-JSON output from agent", map[string]any{"line": "booting", "a": 1})
	assert.Equal(t, "  [warn] discarding non-JSON output from agent a=1 line=booting\n", buf.String())

	buf.Reset()
	newLogHandler(&buf, true).Debug("shown", nil)
	assert.Equal(t, "  [debug] shown\n", buf.String())
}
