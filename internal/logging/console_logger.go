package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"
)

var levelColors = map[LogLevel]string{
	DEBUG: ansiBlue,
	WARN:  ansiYellow,
	ERROR: ansiRed,
}

// consoleSink is the writer shared by a ConsoleLogger and its derived loggers.
type consoleSink struct {
	mu     sync.Mutex
	w      io.Writer
	level  LogLevel
	color  bool
	stamp  bool
	redact bool
}

// ConsoleLogger writes one human-readable line per entry, to stderr by
// default so stdout stays free for the JSON envelope and downloads.
type ConsoleLogger struct {
	sink    *consoleSink
	traceID string
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleLogger{sink: &consoleSink{
		w:      w,
		level:  config.Level,
		color:  config.ColorEnabled,
		stamp:  config.TimestampEnabled,
		redact: config.RedactSensitive,
	}}
}

// Secrets that pass through this tool: OAuth tokens and codes, the PKCE
// verifier, the client secret and a service account's private key.
var redactions = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)\b(access_token|refresh_token|id_token|client_secret|code_verifier|code)(["']?\s*[:=]\s*["']?)[^\s"'&,]+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`(?i)(authorization["']?\s*[:=]\s*["']?)[^\s"']+`), "$1[REDACTED]"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[^-]*-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED PRIVATE KEY]"},
}

func redactSensitiveData(s string) string {
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

func (s *consoleSink) paint(sb *strings.Builder, color, text string) {
	if s.color && color != "" {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(ansiReset)
		return
	}
	sb.WriteString(text)
}

func (l *ConsoleLogger) format(level LogLevel, msg string, fields []Field) string {
	s := l.sink
	var sb strings.Builder

	if s.stamp {
		s.paint(&sb, ansiGray, time.Now().Format("15:04:05.000"))
		sb.WriteByte(' ')
	}
	s.paint(&sb, levelColors[level], fmt.Sprintf("%-5s", level))
	sb.WriteByte(' ')
	if l.traceID != "" {
		s.paint(&sb, ansiGray, "["+shortTraceID(l.traceID)+"]")
		sb.WriteByte(' ')
	}
	sb.WriteString(msg)

	for _, f := range fields {
		v := fmt.Sprint(fieldValue(f.Value))
		if strings.ContainsAny(v, " \t\"=") || v == "" {
			v = strconv.Quote(v)
		}
		sb.WriteByte(' ')
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(v)
	}

	if s.redact {
		return redactSensitiveData(sb.String())
	}
	return sb.String()
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields []Field) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	_, _ = fmt.Fprintln(s.w, l.format(level, msg, fields))
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields) }

// WithTraceID returns a logger on the same sink that prefixes traceID.
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	return &ConsoleLogger{sink: l.sink, traceID: traceID}
}

func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		return l.WithTraceID(id)
	}
	return l
}

// SetLevel changes the threshold for this logger and every logger derived
// from it.
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Close is a no-op; the writer belongs to the caller.
func (l *ConsoleLogger) Close() error {
	return nil
}
