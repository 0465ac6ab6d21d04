package notification

import (
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/tmsclinic/intake/internal/intake/form"
)

var summaryTmpl = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>{{.Title}}</h2>
  <p>Submission <strong>{{.SubmissionID}}</strong></p>
  {{if .Score}}<p><strong>Total score:</strong> {{.Score}} &mdash; {{.Severity}}</p>{{end}}
  <table cellpadding="6" style="border-collapse: collapse;">
    {{range .Rows}}
    <tr>
      <td style="border: 1px solid #d1d5db; font-weight: bold;">{{.Label}}</td>
      <td style="border: 1px solid #d1d5db;">{{.Value}}</td>
    </tr>
    {{end}}
  </table>
</body>
</html>`))

type summaryRow struct {
	Label string
	Value string
}

type summaryData struct {
	Title        string
	SubmissionID string
	Score        string
	Severity     string
	Rows         []summaryRow
}

// flattenFields turns the raw field map into stable label/value rows.
// Checkbox groups list the checked codes; assessment responses list
// question→option pairs.
func flattenFields(fields form.Fields) []summaryRow {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []summaryRow
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			rows = append(rows, summaryRow{Label: k, Value: v})
		case bool:
			rows = append(rows, summaryRow{Label: k, Value: fmt.Sprintf("%t", v)})
		case map[string]interface{}:
			var parts []string
			subkeys := make([]string, 0, len(v))
			for sk := range v {
				subkeys = append(subkeys, sk)
			}
			sort.Strings(subkeys)
			for _, sk := range subkeys {
				switch sv := v[sk].(type) {
				case bool:
					if sv {
						parts = append(parts, sk)
					}
				case string:
					if sv != "" {
						parts = append(parts, fmt.Sprintf("%s: %s", sk, sv))
					}
				}
			}
			rows = append(rows, summaryRow{Label: k, Value: strings.Join(parts, ", ")})
		default:
			rows = append(rows, summaryRow{Label: k, Value: fmt.Sprintf("%v", v)})
		}
	}
	return rows
}

func renderHTML(s Summary) (string, error) {
	data := summaryData{
		Title:        subjectFor(s.FormType),
		SubmissionID: s.SubmissionID,
		Rows:         flattenFields(s.Fields),
	}
	if s.TotalScore != nil {
		data.Score = fmt.Sprintf("%d", *s.TotalScore)
	}
	if s.Severity != nil {
		data.Severity = *s.Severity
	}

	var buf strings.Builder
	if err := summaryTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}

// renderText is the plain-text fallback: one "label: value" line per field.
func renderText(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nSubmission %s\n", subjectFor(s.FormType), s.SubmissionID)
	if s.TotalScore != nil {
		sev := ""
		if s.Severity != nil {
			sev = " (" + *s.Severity + ")"
		}
		fmt.Fprintf(&b, "Total score: %d%s\n", *s.TotalScore, sev)
	}
	b.WriteString("\n")
	for _, row := range flattenFields(s.Fields) {
		fmt.Fprintf(&b, "%s: %s\n", row.Label, row.Value)
	}
	return b.String()
}
