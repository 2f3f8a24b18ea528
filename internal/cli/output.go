package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how list commands render their results.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	// OutputFormatPlain is kubectl-style columns without borders, for grep and awk.
	OutputFormatPlain OutputFormat = "plain"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates s. The empty string selects the table format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputFormatTable, nil
	case OutputFormatTable, OutputFormatPlain, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	default:
		return "", &UsageError{Message: fmt.Sprintf("unsupported output format %q (use table, plain, json or yaml)", s)}
	}
}

// Listing is a result that can be shown as rows or serialized as-is.
type Listing struct {
	Headers []string
	Rows    [][]string
	// Data is serialized for json and yaml output.
	Data any
	// Empty is printed instead of an empty table.
	Empty string
}

// Render writes l to w in format.
func Render(w io.Writer, format OutputFormat, l Listing, noHeaders bool) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l.Data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l.Data); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(l.Rows) == 0 && l.Empty != "" && format != OutputFormatPlain {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint(l.Empty))
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	if format == OutputFormatPlain {
		t.SetStyle(plainStyle())
	} else {
		t.SetStyle(table.StyleRounded)
		t.Style().Color.Header = text.Colors{text.FgHiCyan}
	}
	if !noHeaders {
		t.AppendHeader(toRow(l.Headers))
	}
	for _, r := range l.Rows {
		t.AppendRow(toRow(r))
	}
	t.Render()
	return nil
}

// plainStyle drops borders and separators, leaving padded columns.
func plainStyle() table.Style {
	s := table.StyleDefault
	s.Name = "plain"
	s.Box.PaddingLeft = ""
	s.Box.PaddingRight = "   "
	s.Options = table.Options{}
	s.Format.Header = text.FormatUpper
	return s
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
