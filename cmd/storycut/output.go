package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable builds a writer that draws box art only on a real terminal.
func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleDefault)
		t.Style().Options.DrawBorder = false
		t.Style().Options.SeparateColumns = false
	}
	t.Style().Format.Header = text.FormatUpper
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	return t
}

func row(cells ...any) table.Row {
	return table.Row(cells)
}

func seconds(v float64) string {
	return fmt.Sprintf("%.1fs", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
