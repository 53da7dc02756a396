package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter prints command results as a JSON envelope or a table
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	stdout   io.Writer
	stderr   io.Writer
	warnings []types.CLIWarning
}

// NewOutputWriter creates a writer on stdout/stderr
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		traceID:  uuid.New().String(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

// SetWriters redirects output, mainly for tests
func (w *OutputWriter) SetWriters(stdout, stderr io.Writer) {
	w.stdout, w.stderr = stdout, stderr
}

// TraceID is the id stamped on the envelope; commands reuse it for logging
func (w *OutputWriter) TraceID() string {
	return w.traceID
}

func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, data, []types.CLIError{}))
	}
	for _, warn := range w.warnings {
		w.Log("Warning [%s]: %s", warn.Code, warn.Message)
	}
	return w.writeTable(data)
}

// WriteError reports cliErr and returns it as an *utils.AppError so the
// caller can hand it back to cobra for the exit code.
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	appErr := utils.NewAppError(cliErr)
	if w.format == types.OutputFormatJSON {
		if err := w.writeJSON(w.envelope(command, nil, []types.CLIError{cliErr})); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w.stderr, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	}
	appErr.Reported = true
	return appErr
}

func (w *OutputWriter) envelope(command string, data interface{}, errs []types.CLIError) types.CLIOutput {
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(data interface{}) error {
	switch v := data.(type) {
	case types.TableRenderer:
		return w.renderTable(v)
	case *types.RemoteNode:
		return w.renderTable(nodeDetail{v})
	case map[string]interface{}:
		return w.renderTable(keyValues(v))
	default:
		encoder := json.NewEncoder(w.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.stdout, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.stdout)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// Log writes to stderr unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.stderr, format+"\n", args...)
	}
}

// keyValues renders ad-hoc command results as a two-column table
type keyValues map[string]interface{}

func (kv keyValues) Headers() []string { return []string{"Key", "Value"} }

func (kv keyValues) Rows() [][]string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprint(kv[k])})
	}
	return rows
}

func (kv keyValues) EmptyMessage() string { return "Nothing to show" }

// nodeDetail renders one node's metadata vertically
type nodeDetail struct {
	n *types.RemoteNode
}

func (d nodeDetail) Headers() []string { return []string{"Field", "Value"} }

func (d nodeDetail) Rows() [][]string {
	n := d.n
	rows := [][]string{
		{"ID", n.ID},
		{"Title", n.Title},
		{"MIME type", n.MimeType},
	}
	optional := []struct{ k, v string }{
		{"Description", n.Description},
		{"Parent", n.ParentID()},
		{"Extension", n.FileExtension},
		{"MD5", n.MD5Checksum},
		{"Created", n.CreatedDate},
		{"Modified", n.ModifiedDate},
	}
	for _, o := range optional {
		if o.v != "" {
			rows = append(rows, []string{o.k, o.v})
		}
	}
	if n.FileSize > 0 {
		rows = append(rows, []string{"Size", formatSize(n.FileSize)})
	}
	if n.Labels != nil {
		rows = append(rows, []string{"Labels", fmt.Sprintf("starred=%t hidden=%t trashed=%t",
			n.Labels.Starred, n.Labels.Hidden, n.Labels.Trashed)})
	}
	if n.UserPermission != nil {
		rows = append(rows, []string{"Role", n.UserPermission.Role})
	}
	return rows
}

func (d nodeDetail) EmptyMessage() string { return "No file" }

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
