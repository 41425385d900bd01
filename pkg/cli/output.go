package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-yaml"
	"github.com/itchyny/gojq"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	// FormatYAML outputs as YAML (default for terminal)
	FormatYAML OutputFormat = "yaml"
	// FormatJSON outputs as JSON
	FormatJSON OutputFormat = "json"
	// FormatTable outputs values implementing Tabler as a table
	FormatTable OutputFormat = "table"
	// FormatRaw writes strings and bytes verbatim
	FormatRaw OutputFormat = "raw"
)

// Tabler is implemented by results that can render as a table.
type Tabler interface {
	TableHeader() []string
	TableRows() [][]string
}

// OutputOptions configures output behavior.
type OutputOptions struct {
	// Format is the output format (yaml, json, table, raw).
	Format OutputFormat

	// Query is an optional jq expression applied to the JSON form of the
	// result. Each emitted value is written in Format.
	Query string

	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// Output writes result to the configured destination.
func Output(result any, opts OutputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.Query != "" {
		return outputQuery(w, result, opts)
	}
	return write(w, result, opts.Format)
}

func write(w io.Writer, result any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return outputJSON(w, result)
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatTable:
		if t, ok := result.(Tabler); ok {
			return outputTable(w, t)
		}
		return outputYAML(w, result)
	case FormatRaw:
		return outputRaw(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func outputQuery(w io.Writer, result any, opts OutputOptions) error {
	q, err := gojq.Parse(opts.Query)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	format := opts.Format
	if format == FormatTable {
		format = FormatYAML
	}
	iter := q.Run(v)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return fmt.Errorf("query: %w", err)
		}
		if s, ok := out.(string); ok && format != FormatJSON {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
			continue
		}
		if err := write(w, out, format); err != nil {
			return err
		}
	}
}

func outputJSON(w io.Writer, result any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.MarshalWithOptions(result, yaml.UseJSONMarshaler())
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func outputTable(w io.Writer, t Tabler) error {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(DefaultTheme.Dim)).
		Headers(t.TableHeader()...).
		Rows(t.TableRows()...)
	_, err := fmt.Fprintln(w, tbl.String())
	return err
}

func outputRaw(w io.Writer, result any) error {
	switch v := result.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := io.WriteString(w, v)
		return err
	default:
		return outputYAML(w, result)
	}
}

// PrintSuccess prints a success message with checkmark.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintInfo prints an info message.
func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}

// PrintWarning prints a warning message.
func PrintWarning(format string, args ...any) {
	fmt.Printf("⚠ "+format+"\n", args...)
}
