// Package report renders custody reports into downloadable documents.
package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"keyline/internal/domain"
)

type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatHTML, FormatMarkdown:
		return f, nil
	default:
		return "", &domain.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", s)}
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Data is the snapshot a report is rendered from.
type Data struct {
	Name        string
	GeneratedAt string
	Stats       domain.Stats
	Staff       []domain.UserAccount
	Keys        []domain.Key
	Tasks       []domain.Task
	History     []domain.KeyHistoryEntry
}

// Render lays the report out as a sequence of tables.
func Render(d Data, f Format) ([]byte, error) {
	sections := []table.Writer{
		summaryTable(d),
		staffTable(d.Staff),
		keysTable(d.Keys),
		tasksTable(d.Tasks),
		historyTable(d.History),
	}
	var b strings.Builder
	switch f {
	case FormatHTML:
		fmt.Fprintf(&b, "<h1>%s</h1>\n<p>Generated %s</p>\n", htmlEscape(d.Name), htmlEscape(d.GeneratedAt))
	case FormatMarkdown:
		fmt.Fprintf(&b, "# %s\n\nGenerated %s\n\n", d.Name, d.GeneratedAt)
	case FormatCSV:
	default:
		fmt.Fprintf(&b, "%s\nGenerated %s\n\n", d.Name, d.GeneratedAt)
	}
	for _, tw := range sections {
		switch f {
		case FormatCSV:
			b.WriteString(tw.RenderCSV())
		case FormatHTML:
			b.WriteString(tw.RenderHTML())
		case FormatMarkdown:
			b.WriteString(tw.RenderMarkdown())
		case FormatText:
			b.WriteString(tw.Render())
		default:
			return nil, fmt.Errorf("unsupported format %q", f)
		}
		b.WriteString("\n\n")
	}
	return []byte(b.String()), nil
}

func summaryTable(d Data) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Summary")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Total staff", d.Stats.TotalStaff},
		{"Total keys", d.Stats.TotalKeys},
		{"Available keys", d.Stats.AvailableKeys},
		{"Assigned keys", d.Stats.AssignedKeys},
		{"Total tasks", d.Stats.TotalTasks},
		{"Pending tasks", d.Stats.PendingTasks},
		{"Completed tasks", d.Stats.CompletedTasks},
	})
	return tw
}

func staffTable(staff []domain.UserAccount) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Staff directory")
	tw.AppendHeader(table.Row{"Name", "Username", "Email", "Phone"})
	for _, a := range staff {
		tw.AppendRow(table.Row{a.Name, a.Username, a.Email, a.Phone})
	}
	return tw
}

func keysTable(keys []domain.Key) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Key inventory")
	tw.AppendHeader(table.Row{"Key", "Description", "Status", "Assigned to", "Created"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k.KeyNumber, k.Description, k.Status, k.AssignedToName, k.CreatedDate})
	}
	return tw
}

func tasksTable(tasks []domain.Task) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Tasks")
	tw.AppendHeader(table.Row{"Task", "Assigned to", "Key", "Due", "Checklist", "Status"})
	for _, t := range tasks {
		done := len(t.TodoItems) - len(t.OpenItems())
		tw.AppendRow(table.Row{t.TaskName, t.AssignedTo, t.KeyNumber, t.DueDate, fmt.Sprintf("%d/%d", done, len(t.TodoItems)), t.Status})
	}
	return tw
}

func historyTable(history []domain.KeyHistoryEntry) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Key history")
	tw.AppendHeader(table.Row{"Time", "Key", "Action", "Staff"})
	for _, h := range history {
		tw.AppendRow(table.Row{h.Timestamp, h.KeyNumber, h.Action, h.StaffName})
	}
	return tw
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }
