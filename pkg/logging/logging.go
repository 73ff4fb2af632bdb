package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is a slog level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the handler used for Config.Output.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Attribute keys shared by every component.
const (
	KeyListener   = "listener"
	KeyConnID     = "conn_id"
	KeyRemoteAddr = "remote_addr"
	KeyInput      = "input"
	KeyOutput     = "output"
)

// Config describes where logs go.
type Config struct {
	Level  Level
	Format Format

	// Output receives logs in Format. Nil means os.Stderr.
	Output io.Writer

	// File, when set, receives a JSON copy of every record. Existing
	// content is kept.
	File string
}

// New returns a logger writing to cfg.Output. cfg.File is ignored; use Open
// for it.
func New(cfg Config) *slog.Logger {
	return slog.New(newHandler(cfg))
}

// Open returns a logger for cfg, mirroring into cfg.File when set. The
// closer releases the file and must be called once logging is done.
func Open(cfg Config) (*slog.Logger, io.Closer, error) {
	h := newHandler(cfg)
	if cfg.File == "" {
		return slog.New(h), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	mirror := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: cfg.Level})
	return slog.New(NewMultiHandler(h, mirror)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newHandler(cfg Config) slog.Handler {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns log, or Nop() when log is nil.
func OrNop(log *slog.Logger) *slog.Logger {
	if log == nil {
		return Nop()
	}
	return log
}

// ParseLevel maps a configured level name to a Level, ignoring case.
// "warning" is accepted for warn. Empty or unknown names give LevelInfo.
func ParseLevel(s string) Level {
	l, ok := lookupLevel(s)
	if !ok {
		return LevelInfo
	}
	return l
}

// ValidLevel reports whether s is empty or a level name ParseLevel knows.
func ValidLevel(s string) bool {
	_, ok := lookupLevel(s)
	return ok || s == ""
}

func lookupLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// ParseFormat returns FormatJSON for "json" in any case, FormatText
// otherwise.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
