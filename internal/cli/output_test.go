package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dl-alexandre/gdmirror/internal/cache"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

func newTestWriter(format types.OutputFormat, quiet bool) (*OutputWriter, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	w := NewOutputWriter(format, quiet, false)
	w.SetWriters(&stdout, &stderr)
	return w, &stdout, &stderr
}

func TestWriteSuccess_JSONEnvelope(t *testing.T) {
	w, stdout, _ := newTestWriter(types.OutputFormatJSON, false)
	w.AddWarning(utils.ErrCodeCacheError, "cache behind", "warning")

	if err := w.WriteSuccess("list", cacheEntries{{Title: "a.txt", ID: "id-1"}}); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}

	var env struct {
		SchemaVersion string             `json:"schemaVersion"`
		TraceID       string             `json:"traceId"`
		Command       string             `json:"command"`
		Data          []cache.Entry      `json:"data"`
		Warnings      []types.CLIWarning `json:"warnings"`
		Errors        []types.CLIError   `json:"errors"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if env.SchemaVersion != utils.SchemaVersion {
		t.Errorf("schemaVersion = %q, want %q", env.SchemaVersion, utils.SchemaVersion)
	}
	if env.TraceID != w.TraceID() {
		t.Errorf("traceId = %q, want %q", env.TraceID, w.TraceID())
	}
	if env.Command != "list" {
		t.Errorf("command = %q, want list", env.Command)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "id-1" {
		t.Errorf("data = %+v", env.Data)
	}
	if len(env.Warnings) != 1 || env.Warnings[0].Code != utils.ErrCodeCacheError {
		t.Errorf("warnings = %+v", env.Warnings)
	}
	if env.Errors == nil || len(env.Errors) != 0 {
		t.Errorf("errors = %+v, want empty array", env.Errors)
	}
}

func TestWriteError(t *testing.T) {
	cliErr := utils.NewCLIError(utils.ErrCodeFileNotFound, "no such file").WithHTTPStatus(404).Build()

	t.Run("json", func(t *testing.T) {
		w, stdout, stderr := newTestWriter(types.OutputFormatJSON, false)
		err := w.WriteError("show", cliErr)

		appErr, ok := err.(*utils.AppError)
		if !ok {
			t.Fatalf("WriteError() = %T, want *utils.AppError", err)
		}
		if !appErr.Reported || appErr.CLIError.Code != utils.ErrCodeFileNotFound {
			t.Errorf("appErr = %+v", appErr)
		}
		if stderr.Len() != 0 {
			t.Errorf("stderr = %q, want empty", stderr.String())
		}

		var env types.CLIOutput
		if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if env.Data != nil {
			t.Errorf("data = %v, want null", env.Data)
		}
		if len(env.Errors) != 1 || env.Errors[0].HTTPStatus != 404 {
			t.Errorf("errors = %+v", env.Errors)
		}
	})

	t.Run("table", func(t *testing.T) {
		w, stdout, stderr := newTestWriter(types.OutputFormatTable, false)
		err := w.WriteError("show", cliErr)
		if utils.GetExitCode(err.(*utils.AppError).CLIError.Code) != utils.ExitFileNotFound {
			t.Errorf("exit code mismatch for %v", err)
		}
		if stdout.Len() != 0 {
			t.Errorf("stdout = %q, want empty", stdout.String())
		}
		if !strings.Contains(stderr.String(), "Error [FILE_NOT_FOUND]: no such file") {
			t.Errorf("stderr = %q", stderr.String())
		}
	})
}

func TestWriteSuccess_Tables(t *testing.T) {
	tests := []struct {
		name     string
		data     interface{}
		quiet    bool
		contains []string
		empty    bool
	}{
		{
			name:     "cache entries",
			data:     cacheEntries{{Title: "report.pdf", ID: "id-7"}},
			contains: []string{"TITLE", "report.pdf", "id-7"},
		},
		{
			name:     "empty cache",
			data:     cacheEntries{},
			contains: []string{"Cache is empty"},
		},
		{
			name:  "empty cache quiet",
			data:  cacheEntries{},
			quiet: true,
			empty: true,
		},
		{
			name:     "key values sorted",
			data:     map[string]interface{}{"zeta": 1, "alpha": "x"},
			contains: []string{"alpha", "zeta"},
		},
		{
			name: "node detail",
			data: &types.RemoteNode{
				ID: "id-1", Title: "a.txt", MimeType: "text/plain", FileSize: 2048,
				ParentIDs: []string{"p-1"},
			},
			contains: []string{"a.txt", "text/plain", "2.0 KB", "p-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, _ := newTestWriter(types.OutputFormatTable, tt.quiet)
			if err := w.WriteSuccess("cmd", tt.data); err != nil {
				t.Fatalf("WriteSuccess() error = %v", err)
			}
			got := stdout.String()
			if tt.empty && got != "" {
				t.Errorf("stdout = %q, want empty", got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("stdout missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestKeyValuesRowsSorted(t *testing.T) {
	rows := keyValues{"b": 2, "a": 1, "c": "three"}.Rows()
	want := [][]string{{"a", "1"}, {"b", "2"}, {"c", "three"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
