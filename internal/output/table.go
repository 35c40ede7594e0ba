package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Check statuses shown by diagnostics.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusFail = "fail"
	StatusOff  = "off"
)

// CheckRow is one line of a diagnostics table.
type CheckRow struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// FormatChecks renders rows as a rounded table with a pass count footer.
// The footer keeps its case.
func FormatChecks(title string, rows []CheckRow) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"Check", "Status", "Detail"})

	failed := 0
	for _, row := range rows {
		if row.Status == StatusFail {
			failed++
		}
		t.AppendRow(table.Row{row.Name, statusLabel(row.Status), row.Detail})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d passing", len(rows)-failed, len(rows)), ""})
	return t.Render()
}

// FormatKeyValues renders ordered key/value pairs as a two column table.
func FormatKeyValues(title string, pairs [][2]string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	for _, pair := range pairs {
		t.AppendRow(table.Row{pair[0], pair[1]})
	}
	return t.Render()
}

func statusLabel(status string) string {
	switch status {
	case StatusOK:
		return "✅ ok"
	case StatusWarn:
		return "⚠️  warn"
	case StatusFail:
		return "❌ fail"
	case StatusOff:
		return "– off"
	default:
		return status
	}
}
