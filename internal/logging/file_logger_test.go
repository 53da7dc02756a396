package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestFileLogger(t *testing.T, level LogLevel, maxSize int64) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "gdmirror.log")
	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath:      path,
		Level:         level,
		MaxFileSize:   maxSize,
		RotateEnabled: maxSize > 0,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var entries []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not a LogEntry: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	logger, path := openTestFileLogger(t, DEBUG, 0)

	logger.Info("Created folder", F("title", "Backup"), F("id", "id-1"))
	logger.Error("Failed to create file", F("status", 403), F("error", errors.New("forbidden")))

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.Level != "INFO" || first.Message != "Created folder" {
		t.Errorf("first entry = %+v", first)
	}
	if first.Fields["title"] != "Backup" || first.Fields["id"] != "id-1" {
		t.Errorf("first fields = %v", first.Fields)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	second := entries[1]
	// JSON numbers decode as float64.
	if second.Fields["status"] != float64(403) {
		t.Errorf("status = %#v", second.Fields["status"])
	}
	if second.Fields["error"] != "forbidden" {
		t.Errorf("error field = %#v, want the error text", second.Fields["error"])
	}
}

func TestFileLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		want  []string
	}{
		{"debug", DEBUG, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{"info", INFO, []string{"INFO", "WARN", "ERROR"}},
		{"error", ERROR, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, path := openTestFileLogger(t, tt.level, 0)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			entries := readEntries(t, path)
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e.Level != tt.want[i] {
					t.Errorf("entry %d level = %s, want %s", i, e.Level, tt.want[i])
				}
			}
		})
	}
}

func TestFileLogger_TraceIDSharesFile(t *testing.T) {
	logger, path := openTestFileLogger(t, INFO, 0)

	logger.WithTraceID("run-1").Info("Upload finished")
	logger.WithContext(ContextWithTraceID(context.Background(), "run-2")).Info("Upload finished")
	logger.WithContext(context.Background()).Info("no trace")

	entries := readEntries(t, path)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"run-1", "run-2", ""} {
		if entries[i].TraceID != want {
			t.Errorf("entry %d traceId = %q, want %q", i, entries[i].TraceID, want)
		}
	}
}

func TestFileLogger_SetLevel(t *testing.T) {
	logger, path := openTestFileLogger(t, INFO, 0)
	logger.Debug("hidden")
	logger.SetLevel(DEBUG)
	logger.Debug("shown")

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0].Message != "shown" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	logger, path := openTestFileLogger(t, INFO, 200)
	for i := 0; i < 20; i++ {
		logger.Info("Created file", F("path", strings.Repeat("x", 40)))
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no rotated files")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	// One entry may push the file past the limit before the next rotation.
	if info.Size() > 400 {
		t.Errorf("current log size = %d, rotation did not keep it bounded", info.Size())
	}
}

func TestFileLogger_AppendsAcrossOpens(t *testing.T) {
	logger, path := openTestFileLogger(t, INFO, 0)
	logger.Info("first run")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	logger.Info("after close is dropped")

	again, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Info("second run")
	_ = again.Close()

	entries := readEntries(t, path)
	if len(entries) != 2 || entries[0].Message != "first run" || entries[1].Message != "second run" {
		t.Errorf("entries = %+v", entries)
	}
}
