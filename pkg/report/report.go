// Package report writes run summaries to disk for people and tools to read.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"time"

	"github.com/evalcontext/ecp/pkg/eval"
)

const timestampLayout = "2006-01-02 15:04:05"

// WriteJSON writes summary to path as indented JSON.
func WriteJSON(path string, summary *eval.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results to '%s': %w", path, err)
	}

	return nil
}

// WriteHTML writes a standalone HTML report of summary to path.
func WriteHTML(path string, summary *eval.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report '%s': %w", path, err)
	}

	if err := RenderHTML(f, summary, time.Now()); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report '%s': %w", path, err)
	}

	return nil
}

// RenderHTML renders the HTML report of summary, stamped with generated.
func RenderHTML(w io.Writer, summary *eval.RunSummary, generated time.Time) error {
	data := struct {
		Summary   *eval.RunSummary
		Timestamp string
	}{
		Summary:   summary,
		Timestamp: generated.Format(timestampLayout),
	}

	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}).Parse(htmlReport))

const htmlReport = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>ECP Evaluation Report{{ with .Summary.Name }}: {{ . }}{{ end }}</title>
    <style>
        body { font-family: sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; background: #f4f4f9; }
        .card { background: white; padding: 20px; margin-bottom: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .pass { color: green; font-weight: bold; }
        .fail { color: red; font-weight: bold; }
        .step { border-top: 1px solid #eee; margin-top: 10px; padding-top: 10px; }
        h1 { border-bottom: 2px solid #ddd; padding-bottom: 10px; }
        .meta { color: #666; font-size: 0.9em; }
        pre { background: #eee; padding: 10px; border-radius: 4px; overflow-x: auto; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>ECP Evaluation Report</h1>
    <div class="meta">Generated: {{ .Timestamp }}</div>
    <div class="meta">Run {{ .Summary.RunID }}: {{ .Summary.Passed }}/{{ .Summary.Total }} checks passed</div>
{{ range .Summary.Scenarios }}
    <div class="card">
        <h2>Scenario: {{ .Name }}</h2>
        {{- with .Agent }}
        <div class="meta">Agent: {{ . }}</div>
        {{- end }}
        {{- if .Error }}
        <p class="fail">Aborted during {{ .FailedPhase }}</p>
        <pre>{{ .Error }}</pre>
        {{- end }}
        {{- range .Steps }}
        <div class="step">
            <p><strong>Input:</strong> {{ .Input }}</p>
            <p><strong>Output:</strong> {{ deref .Output }}</p>
            {{- with .ToolCalls }}
            <p><strong>Tool calls:</strong>{{ range . }} <code>{{ .Name }}</code>{{ end }}</p>
            {{- end }}
            <h4>Graders:</h4>
            <ul>
            {{- range .Checks }}
                <li>
                    {{ if .Passed }}<span class="pass">&#x2705; PASS</span>{{ else }}<span class="fail">&#x274C; FAIL</span>{{ end }}
                    {{ .Type }}
                    {{- if .Reasoning }}
                    <br><small>Reason: {{ .Reasoning }}</small>
                    {{- end }}
                </li>
            {{- end }}
            </ul>
        </div>
        {{- end }}
    </div>
{{ end }}
</body>
</html>
`
