package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process-wide logger
type LogOptions struct {
	Verbose bool   // Debug level
	Quiet   bool   // Errors only (wins over Verbose)
	Format  string // "text" (default) or "json"
	File    string // Optional rotated log file
	Output  io.Writer
}

var (
	levelVar = new(slog.LevelVar)
	loggerMu sync.RWMutex
	logger   = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      levelVar,
		TimeFormat: "15:04:05",
		NoColor:    !shouldUseColors(os.Stderr),
	}))
)

// SetupLogging installs the process-wide logger
func SetupLogging(opts LogOptions) {
	switch {
	case opts.Quiet:
		levelVar.Set(slog.LevelError)
	case opts.Verbose:
		levelVar.Set(slog.LevelDebug)
	default:
		levelVar.Set(slog.LevelInfo)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	if opts.Format == "json" {
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelVar})
	} else {
		noColor := true
		if f, ok := out.(*os.File); ok {
			noColor = !shouldUseColors(f)
		}
		console = tint.NewHandler(out, &tint.Options{
			Level:      levelVar,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		})
	}

	handler := console
	if opts.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		handler = NewMultiHandler(console, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: levelVar}))
	}

	loggerMu.Lock()
	logger = slog.New(handler)
	loggerMu.Unlock()
}

// Logger returns the process-wide structured logger
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// IsQuiet reports whether only errors are logged
func IsQuiet() bool {
	return levelVar.Level() >= slog.LevelError
}

// IsVerbose reports whether debug output is enabled
func IsVerbose() bool {
	return levelVar.Level() <= slog.LevelDebug
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, args...))
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	Logger().Info(fmt.Sprintf(format, args...))
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, args...))
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	Logger().Error(fmt.Sprintf(format, args...))
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	Logger().Info(fmt.Sprintf(format, args...), "status", "ok")
}

// shouldUseColors determines if colored output should be used for f
func shouldUseColors(f *os.File) bool {
	if !IsTerminal(f.Fd()) {
		return false
	}
	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

// MultiHandler writes to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}
