package commands

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"prop-crawler/internal/pipeline"
)

// renderLedger prints the counters of one pipeline run and then any
// failures it recorded.
func renderLedger(out io.Writer, title string, l *pipeline.Ledger) {
	if l == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Total", "Processed", "Failed", "Skipped"})
	t.AppendRow(table.Row{l.Total.Load(), l.Processed.Load(), l.Failed.Load(), l.Skipped()})
	t.SetStyle(table.StyleRounded)
	t.Render()

	failures := l.Failures()
	if len(failures) == 0 {
		return
	}
	f := table.NewWriter()
	f.SetOutputMirror(out)
	f.AppendHeader(table.Row{"Item", "Error"})
	for _, failure := range failures {
		f.AppendRow(table.Row{failure.Key, failure.Err.Error()})
	}
	f.SetStyle(table.StyleRounded)
	f.Render()
}

// renderCounts prints name/value pairs as a two column table.
func renderCounts(out io.Writer, title string, rows [][2]any) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	for _, row := range rows {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
