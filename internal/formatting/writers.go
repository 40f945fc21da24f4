package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	textutil "fastgeoapi/pkg/strings"
)

// WriteRows renders key/value rows. Structured formats emit an object, so
// row order only matters for the table.
func WriteRows(w io.Writer, format OutputFormat, rows []Row) error {
	switch format {
	case FormatJSON, FormatYAML:
		obj := make(map[string]string, len(rows))
		for _, r := range rows {
			obj[r.Key] = r.Value
		}
		return writeStructured(w, format, obj)
	}

	t := createTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("KEY"),
		text.FgHiCyan.Sprint("VALUE"),
	})
	for _, r := range rows {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(r.Key), r.Value})
	}
	t.Render()
	return nil
}

// toolSummary is the structured form of one MCP tool.
type toolSummary struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []string `json:"arguments" yaml:"arguments"`
	Required    []string `json:"required,omitempty" yaml:"required,omitempty"`
}

// WriteTools renders a tool list.
func WriteTools(w io.Writer, format OutputFormat, tools []mcp.Tool) error {
	summaries := make([]toolSummary, 0, len(tools))
	for _, tool := range tools {
		args := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			args = append(args, name)
		}
		sort.Strings(args)
		summaries = append(summaries, toolSummary{
			Name:        tool.Name,
			Description: tool.Description,
			Arguments:   args,
			Required:    tool.InputSchema.Required,
		})
	}

	switch format {
	case FormatJSON, FormatYAML:
		return writeStructured(w, format, summaries)
	}

	if len(summaries) == 0 {
		_, err := fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No tools found"))
		return err
	}

	t := createTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("ARGUMENTS"),
		text.FgHiCyan.Sprint("DESCRIPTION"),
	})
	for _, s := range summaries {
		args := make([]string, 0, len(s.Arguments))
		required := map[string]bool{}
		for _, r := range s.Required {
			required[r] = true
		}
		for _, a := range s.Arguments {
			if required[a] {
				a += "*"
			}
			args = append(args, a)
		}
		t.AppendRow(table.Row{s.Name, strings.Join(args, ", "), textutil.Summary(s.Description, textutil.DefaultSummaryMaxLen)})
	}
	t.Render()
	_, err := fmt.Fprintf(w, "\n%s %s\n", text.FgHiBlue.Sprint("Total:"), text.FgHiWhite.Sprint(len(summaries)))
	return err
}

func createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func writeStructured(w io.Writer, format OutputFormat, v any) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
