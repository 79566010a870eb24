package kitchen

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// NewConsoleLogger logs to w, coloured when w is a terminal.
func NewConsoleLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}

// closeLogged closes c and logs a failure at debug level.
func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Debug("close "+what, "err", err)
	}
}

// Logger writes one check's log file.
type Logger struct {
	l *slog.Logger
	f *os.File
}

func NewCheckLogger(logDir string, checkID string, target string, t time.Time) (*Logger, string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("kitchenctl_%s_%s_%s.log", sanitize(checkID), sanitize(target), t.Format("20060102150405"))
	path := filepath.Join(logDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", err
	}
	l := slog.New(tint.NewHandler(f, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}))
	return &Logger{l: l.With("check", checkID), f: f}, path, nil
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Error(fmt.Sprintf(format, args...))
}

// Slog exposes the underlying logger, e.g. to pass to NewHost.
func (l *Logger) Slog() *slog.Logger {
	if l == nil || l.l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.l
}

func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r)
		case r >= '0' && r <= '9':
			out = append(out, r)
		case r == '.' || r == '_' || r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
