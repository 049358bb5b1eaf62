package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger output.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// File is the rotating log file path. Empty means stdout only.
	File string
}

// Logger wraps slog.Logger to satisfy proxy.Logger.
type Logger struct {
	logger *slog.Logger
	file   *lumberjack.Logger
}

// New creates a new Logger writing to stdout and, optionally, a rotating file.
func New(opts Options) *Logger {
	var output io.Writer = os.Stdout
	var file *lumberjack.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		output = io.MultiWriter(os.Stdout, file)
	}

	return &Logger{logger: slog.New(newHandler(output, opts)), file: file}
}

// NewWithWriter creates a Logger writing only to w.
func NewWithWriter(w io.Writer, opts Options) *Logger {
	return &Logger{logger: slog.New(newHandler(w, opts))}
}

func newHandler(w io.Writer, opts Options) slog.Handler {
	options := &slog.HandlerOptions{
		Level:     parseLevel(opts.Level),
		AddSource: opts.AddSource,
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}

// With returns a child logger with additional fields.
func (l *Logger) With(args ...any) proxy.Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the rotating file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
