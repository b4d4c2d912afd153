package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger that hands out children scoped to a
// subsystem, a session or a tool.
type Logger struct {
	zl zerolog.Logger
}

// Options describes where a root logger writes.
type Options struct {
	Level string
	Style string // "pretty" or "json"
	File  string // optional JSON-lines copy
}

var levels = map[string]zerolog.Level{
	"trace":  zerolog.TraceLevel,
	"debug":  zerolog.DebugLevel,
	"info":   zerolog.InfoLevel,
	"warn":   zerolog.WarnLevel,
	"error":  zerolog.ErrorLevel,
	"fatal":  zerolog.FatalLevel,
	"silent": zerolog.Disabled,
}

// New returns a root logger on w. A nil w means a console writer on stderr.
// Unknown levels fall back to info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter()
	}
	lvl, ok := levels[level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Open builds the process logger from config. The closer is never nil.
func Open(opts Options) (*Logger, io.Closer, error) {
	var out io.Writer = consoleWriter()
	if strings.EqualFold(opts.Style, "json") {
		out = os.Stderr
	}
	if opts.File == "" {
		return New(out, opts.Level), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(zerolog.MultiLevelWriter(out, f), opts.Level), f, nil
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Sub tags entries with the subsystem that wrote them.
func (l *Logger) Sub(subsystem string) *Logger { return l.with("subsystem", subsystem) }

// Session tags entries with a chat session id.
func (l *Logger) Session(id string) *Logger { return l.with("sessionId", id) }

// Tool tags entries with a tool name.
func (l *Logger) Tool(name string) *Logger { return l.with("tool", name) }

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
